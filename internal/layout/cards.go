// Package layout places milestone cards on the track and tracks their
// entrance as they scroll into view.
package layout

import (
	"github.com/folio-labs/journey/internal/geo"
	"github.com/folio-labs/journey/pkg/core"
)

// Place positions every milestone at the anchor its track segment lands on.
func Place(l geo.Layout, milestones []core.Milestone) []core.Card {
	n := len(milestones)
	cards := make([]core.Card, n)
	for i, m := range milestones {
		cards[i] = core.Card{
			Index:     i,
			Milestone: m,
			Anchor:    l.Anchor(i),
			Side:      side(l.Direction(i)),
			Target:    geo.Target(i, n),
		}
	}
	return cards
}

func side(dir float64) core.Side {
	switch {
	case dir > 0:
		return core.SideRight
	case dir < 0:
		return core.SideLeft
	default:
		return core.SideCenter
	}
}
