// Package timeline composes the progress, geometry, card and beat modules
// into frames, and runs per-visitor scroll sessions over a Host.
package timeline

import (
	"github.com/folio-labs/journey/internal/beat"
	"github.com/folio-labs/journey/internal/geo"
	"github.com/folio-labs/journey/internal/layout"
	"github.com/folio-labs/journey/internal/progress"
	"github.com/folio-labs/journey/pkg/core"
)

// Pipeline is the stateless part of a frame: smoothed progress in, stepped
// progress, marker point and live beats out. A Pipeline is immutable and safe
// for concurrent use.
type Pipeline struct {
	layout geo.Layout
	curve  progress.Curve
	cards  []core.Card
}

// NewPipeline places milestones on l. A nil curve uses progress.DefaultCurve.
func NewPipeline(l geo.Layout, curve progress.Curve, milestones []core.Milestone) *Pipeline {
	if curve == nil {
		curve = progress.DefaultCurve
	}
	return &Pipeline{
		layout: l,
		curve:  curve,
		cards:  layout.Place(l, milestones),
	}
}

// Layout returns the layout the pipeline was built for.
func (p *Pipeline) Layout() geo.Layout { return p.layout }

// Len returns the number of milestones.
func (p *Pipeline) Len() int { return len(p.cards) }

// Cards returns the placed cards. The slice must not be modified.
func (p *Pipeline) Cards() []core.Card { return p.cards }

// Stepped maps smoothed progress to stepped progress.
func (p *Pipeline) Stepped(smoothed float64) float64 {
	return progress.SteppedWith(p.curve, smoothed, len(p.cards))
}

// Frame computes the frame for smoothed progress with live beats and no
// entrance state. Progress outside [0,1] is clamped before it is reported.
func (p *Pipeline) Frame(smoothed float64) core.Frame {
	smoothed = clamp01(smoothed)
	n := len(p.cards)
	stepped := p.Stepped(smoothed)
	o := beat.New(n, beat.ModeLive)
	o.Update(stepped)
	return core.Frame{
		Raw:      smoothed,
		Smoothed: smoothed,
		Stepped:  stepped,
		Marker:   p.layout.PointAt(stepped, n),
		Beats:    o.Active(),
	}
}
