package geo

import (
	"fmt"

	"github.com/folio-labs/journey/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// DefaultSamplesPerHalf is the sampling density used when none is given.
const DefaultSamplesPerHalf = 16

// LineString samples the track of n milestones into a geom.LineString, taking
// samplesPerHalf points along each cubic half. Points come from Cubic.At so
// the polyline lies on the same curve the solver walks.
func (l Layout) LineString(n, samplesPerHalf int) (geom.LineString, error) {
	if n <= 0 {
		return geom.LineString{}, fmt.Errorf("track needs at least 1 milestone, got %d", n)
	}
	if samplesPerHalf <= 0 {
		samplesPerHalf = DefaultSamplesPerHalf
	}

	flatCoords := make([]float64, 0, (n*2*samplesPerHalf+1)*2)
	start := l.Segment(0).In.P0
	flatCoords = append(flatCoords, start.X, start.Y)

	for _, seg := range l.Segments(n) {
		for _, c := range []Cubic{seg.In, seg.Out} {
			for k := 1; k <= samplesPerHalf; k++ {
				p := c.At(float64(k) / float64(samplesPerHalf))
				flatCoords = append(flatCoords, p.X, p.Y)
			}
		}
	}

	seq := geom.NewSequence(flatCoords, geom.DimXY)
	return geom.NewLineString(seq)
}

// Bounds is the axis-aligned envelope of a sampled track.
type Bounds struct {
	Min core.Point `json:"min"`
	Max core.Point `json:"max"`
}

// Width returns the horizontal extent.
func (b Bounds) Width() float64 { return b.Max.X - b.Min.X }

// Height returns the vertical extent.
func (b Bounds) Height() float64 { return b.Max.Y - b.Min.Y }

// Bounds returns the envelope of the sampled track and its length.
func (l Layout) Bounds(n int) (Bounds, float64, error) {
	ls, err := l.LineString(n, DefaultSamplesPerHalf)
	if err != nil {
		return Bounds{}, 0, err
	}

	minXY, maxXY, ok := ls.Envelope().MinMaxXYs()
	if !ok {
		return Bounds{}, 0, fmt.Errorf("empty track envelope")
	}
	return Bounds{
		Min: core.Point{X: minXY.X, Y: minXY.Y},
		Max: core.Point{X: maxXY.X, Y: maxXY.Y},
	}, ls.Length(), nil
}

// WKT returns the sampled track in Well-Known Text.
func (l Layout) WKT(n int) (string, error) {
	ls, err := l.LineString(n, DefaultSamplesPerHalf)
	if err != nil {
		return "", err
	}
	return ls.AsText(), nil
}
