// pkg/core/frame.go
package core

// Side is the horizontal placement of a card relative to the rail.
type Side string

const (
	SideLeft   Side = "left"
	SideRight  Side = "right"
	SideCenter Side = "center"
)

// Card is a milestone placed on the track.
type Card struct {
	Index     int       `json:"index"`
	Milestone Milestone `json:"milestone"`
	Anchor    Point     `json:"anchor"`
	Side      Side      `json:"side"`
	// Target is the stepped progress at which the marker lands on this card.
	Target float64 `json:"target"`
}

// Entrance is the reveal state of a card for a viewport position.
type Entrance struct {
	Index   int     `json:"index"`
	Visible bool    `json:"visible"`
	Opacity float64 `json:"opacity"`
	Scale   float64 `json:"scale"`
}

// Frame is everything the client needs to draw one animation tick.
type Frame struct {
	Seq       uint64     `json:"seq"`
	Raw       float64    `json:"raw"`
	Smoothed  float64    `json:"smoothed"`
	Stepped   float64    `json:"stepped"`
	Marker    Point      `json:"marker"`
	Beats     []bool     `json:"beats"`
	Entrances []Entrance `json:"entrances,omitempty"`
}
