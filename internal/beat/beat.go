// Package beat flags milestones whose target the marker has reached.
package beat

import (
	"fmt"
	"strings"

	"github.com/folio-labs/journey/internal/geo"
)

// Mode selects how a beat reacts when progress moves back past its target.
type Mode int

const (
	// ModeLive mirrors the current position: scrolling back deactivates.
	ModeLive Mode = iota
	// ModeSticky keeps a beat active once reached, until Reset.
	ModeSticky
)

func (m Mode) String() string {
	switch m {
	case ModeSticky:
		return "sticky"
	default:
		return "live"
	}
}

// ParseMode parses "live" or "sticky".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "live":
		return ModeLive, nil
	case "sticky", "visited":
		return ModeSticky, nil
	default:
		return ModeLive, fmt.Errorf("unknown beat mode %q", s)
	}
}

// Change records a beat flipping state.
type Change struct {
	Index  int
	Active bool
}

// Overlay holds one binary state per milestone. Not safe for concurrent use.
type Overlay struct {
	mode   Mode
	active []bool
}

// New creates an overlay for n milestones with every beat inactive.
func New(n int, mode Mode) *Overlay {
	if n < 0 {
		n = 0
	}
	return &Overlay{mode: mode, active: make([]bool, n)}
}

// Mode returns the overlay's mode.
func (o *Overlay) Mode() Mode { return o.mode }

// Len returns the number of milestones.
func (o *Overlay) Len() int { return len(o.active) }

// Update evaluates every beat against stepped progress and returns the beats
// that changed state, in index order.
func (o *Overlay) Update(stepped float64) []Change {
	n := len(o.active)
	var changes []Change
	for i := range o.active {
		reached := stepped >= geo.Target(i, n)
		next := reached
		if o.mode == ModeSticky {
			next = o.active[i] || reached
		}
		if next != o.active[i] {
			o.active[i] = next
			changes = append(changes, Change{Index: i, Active: next})
		}
	}
	return changes
}

// Active returns a copy of the current states.
func (o *Overlay) Active() []bool {
	out := make([]bool, len(o.active))
	copy(out, o.active)
	return out
}

// Reset deactivates every beat.
func (o *Overlay) Reset() {
	for i := range o.active {
		o.active[i] = false
	}
}
