package geo

import (
	"fmt"

	"github.com/folio-labs/journey/pkg/core"
)

// Track is the static, serializable geometry of a track with N milestones.
type Track struct {
	Layout Layout  `json:"layout"`
	N      int     `json:"n"`
	Path   string  `json:"path"`
	Bounds Bounds  `json:"bounds"`
	Length float64 `json:"length"`
	WKT    string  `json:"wkt"`
}

// Width returns the horizontal extent of the sampled track.
func (t Track) Width() float64 { return t.Bounds.Width() }

// Height returns the total height of the track.
func (t Track) Height() float64 { return t.Layout.TotalHeight(t.N) }

// BuildTrack validates l and computes the track of n milestones. An empty
// track has a path but no sampled polyline.
func BuildTrack(l Layout, n int) (Track, error) {
	if err := l.Validate(); err != nil {
		return Track{}, err
	}
	if n < 0 {
		return Track{}, fmt.Errorf("%w: negative milestone count %d", ErrInvalidLayout, n)
	}

	t := Track{Layout: l, N: n, Path: l.Path(n)}
	if n == 0 {
		origin := core.Point{X: l.Axis}
		t.Bounds = Bounds{Min: origin, Max: origin}
		return t, nil
	}

	bounds, length, err := l.Bounds(n)
	if err != nil {
		return Track{}, fmt.Errorf("sample track: %w", err)
	}
	wkt, err := l.WKT(n)
	if err != nil {
		return Track{}, fmt.Errorf("encode track: %w", err)
	}
	t.Bounds = bounds
	t.Length = length
	t.WKT = wkt
	return t, nil
}
