package layout

import (
	"github.com/folio-labs/journey/pkg/core"
)

// Entrance animation defaults.
const (
	DefaultEntranceDistance = 160.0
	DefaultStartScale       = 0.8
)

// Viewport is the visible window over the track, in track coordinates.
type Viewport struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

// Bottom returns the y coordinate of the bottom edge.
func (v Viewport) Bottom() float64 { return v.Top + v.Height }

// Contains reports whether y lies inside the viewport.
func (v Viewport) Contains(y float64) bool { return y >= v.Top && y <= v.Bottom() }

// Reveal tracks card entrances. A card fades and scales in over Distance
// pixels once its anchor passes the bottom of the viewport and stays revealed
// afterwards. Not safe for concurrent use.
type Reveal struct {
	Distance   float64
	StartScale float64

	shown []float64
}

// NewReveal creates a tracker for n cards.
func NewReveal(n int) *Reveal {
	return &Reveal{
		Distance:   DefaultEntranceDistance,
		StartScale: DefaultStartScale,
		shown:      make([]float64, n),
	}
}

// Len returns the number of tracked cards.
func (r *Reveal) Len() int { return len(r.shown) }

// Update computes the entrance state of every card for viewport v. Progress
// never decreases, so scrolling back does not hide cards again.
func (r *Reveal) Update(cards []core.Card, v Viewport) []core.Entrance {
	if len(r.shown) != len(cards) {
		r.shown = make([]float64, len(cards))
	}
	out := make([]core.Entrance, len(cards))
	for i, c := range cards {
		e := r.ramp(c.Anchor.Y, v)
		if e > r.shown[i] {
			r.shown[i] = e
		}
		out[i] = r.state(i)
	}
	return out
}

// Reset hides every card again.
func (r *Reveal) Reset() {
	for i := range r.shown {
		r.shown[i] = 0
	}
}

func (r *Reveal) ramp(anchorY float64, v Viewport) float64 {
	if v.Height <= 0 {
		return 0
	}
	dist := r.Distance
	if dist <= 0 {
		dist = DefaultEntranceDistance
	}
	entered := v.Bottom() - anchorY
	switch {
	case entered <= 0:
		return 0
	case entered >= dist:
		return 1
	}
	return entered / dist
}

func (r *Reveal) state(i int) core.Entrance {
	e := r.shown[i]
	start := r.StartScale
	if start <= 0 || start > 1 {
		start = DefaultStartScale
	}
	return core.Entrance{
		Index:   i,
		Visible: e > 0,
		Opacity: e,
		Scale:   start + (1-start)*e,
	}
}
