package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/folio-labs/journey/pkg/core"
)

// TRACK GEOMETRY
// Every milestone owns a band of Height pixels. The track enters the band on the
// rail (x = Axis), swerves out to the card anchor at MilestoneY and swerves back to
// the rail at the bottom of the band. Direction alternates by index parity.
// The serializer, the point solver and the card renderer all read the same
// Segment values, so a marker at a milestone target always sits on its card.

// ErrInvalidLayout is returned when layout constants cannot describe a track
var ErrInvalidLayout = errors.New("invalid layout")

// Layout holds the constants shared by every consumer of the track geometry.
type Layout struct {
	Height     float64 `json:"height" mapstructure:"height"`         // H: band height per milestone
	Swerve     float64 `json:"swerve" mapstructure:"swerve"`         // W: horizontal card offset, 0 disables swerve
	MilestoneY float64 `json:"milestoneY" mapstructure:"milestoneY"` // card anchor offset inside a band
	Bend       float64 `json:"bend" mapstructure:"bend"`             // x of the first control point
	ControlIn  float64 `json:"controlIn" mapstructure:"controlIn"`   // y offset of the first control point
	ControlOut float64 `json:"controlOut" mapstructure:"controlOut"` // y offset of the second control point
	Axis       float64 `json:"axis" mapstructure:"axis"`             // x of the rail
}

// DefaultLayout returns the desktop layout.
func DefaultLayout() Layout {
	return Layout{
		Height:     480,
		Swerve:     200,
		MilestoneY: 240,
		Bend:       80,
		ControlIn:  120,
		ControlOut: 180,
	}
}

// Mobile returns a copy of l with the swerve disabled.
func (l Layout) Mobile() Layout {
	l.Swerve = 0
	return l
}

// Swerves reports whether the track leaves the rail at all.
func (l Layout) Swerves() bool {
	return l.Swerve != 0
}

// Validate checks that the constants describe a non-degenerate track.
func (l Layout) Validate() error {
	for name, v := range map[string]float64{
		"height": l.Height, "swerve": l.Swerve, "milestoneY": l.MilestoneY,
		"bend": l.Bend, "controlIn": l.ControlIn, "controlOut": l.ControlOut, "axis": l.Axis,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidLayout, name)
		}
	}
	if l.Height <= 0 {
		return fmt.Errorf("%w: height must be positive, got %g", ErrInvalidLayout, l.Height)
	}
	if l.Swerve < 0 {
		return fmt.Errorf("%w: swerve must not be negative, got %g", ErrInvalidLayout, l.Swerve)
	}
	if l.MilestoneY < 0 || l.MilestoneY > l.Height {
		return fmt.Errorf("%w: milestoneY %g outside [0, %g]", ErrInvalidLayout, l.MilestoneY, l.Height)
	}
	if l.ControlIn < 0 || l.ControlIn > l.Height {
		return fmt.Errorf("%w: controlIn %g outside [0, %g]", ErrInvalidLayout, l.ControlIn, l.Height)
	}
	if l.ControlOut < 0 || l.ControlOut > l.Height {
		return fmt.Errorf("%w: controlOut %g outside [0, %g]", ErrInvalidLayout, l.ControlOut, l.Height)
	}
	return nil
}

// Direction returns +1 for even indices, -1 for odd ones and 0 when the
// swerve is disabled.
func (l Layout) Direction(i int) float64 {
	if !l.Swerves() {
		return 0
	}
	if i%2 == 0 {
		return 1
	}
	return -1
}

// BandStart returns the y coordinate where milestone i's band begins.
func (l Layout) BandStart(i int) float64 {
	return float64(i) * l.Height
}

// TotalHeight returns the height of a track with n milestones.
func (l Layout) TotalHeight(n int) float64 {
	if n < 0 {
		n = 0
	}
	return float64(n) * l.Height
}

// Anchor returns the card anchor of milestone i.
func (l Layout) Anchor(i int) core.Point {
	return l.Segment(i).In.P3
}

// Target returns the stepped progress at which the marker reaches milestone i.
func Target(i, n int) float64 {
	if n <= 0 {
		return 0
	}
	return (float64(i) + 0.5) / float64(n)
}

// Segment is one milestone's portion of the track: In swerves from the rail to
// the card anchor, Out swerves back to the rail.
type Segment struct {
	Index int
	In    Cubic
	Out   Cubic
}

// Segment builds the control points of milestone i.
func (l Layout) Segment(i int) Segment {
	dir := l.Direction(i)
	y := l.BandStart(i)

	anchor := core.Point{X: l.Axis + l.Swerve*dir, Y: y + l.MilestoneY}
	in := Cubic{
		P0: core.Point{X: l.Axis, Y: y},
		P1: core.Point{X: l.Axis + l.Bend*dir, Y: y + l.ControlIn},
		P2: core.Point{X: l.Axis + l.Swerve*dir, Y: y + l.ControlOut},
		P3: anchor,
	}
	out := Cubic{
		P0: anchor,
		// reflection of In.P2 through the anchor keeps the tangent continuous
		P1: anchor.Scale(2).Sub(in.P2),
		P2: core.Point{X: l.Axis + l.Bend*dir, Y: y + l.Height - l.ControlIn},
		P3: core.Point{X: l.Axis, Y: y + l.Height},
	}
	return Segment{Index: i, In: in, Out: out}
}

// Segments builds the control points of every milestone in order.
func (l Layout) Segments(n int) []Segment {
	if n <= 0 {
		return nil
	}
	segs := make([]Segment, n)
	for i := range segs {
		segs[i] = l.Segment(i)
	}
	return segs
}
