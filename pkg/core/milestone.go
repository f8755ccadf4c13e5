// pkg/core/milestone.go
package core

// Milestone is one entry of the experience timeline. All fields are opaque
// display strings; order in the containing slice is the milestone's identity.
type Milestone struct {
	Role       string   `json:"role" yaml:"role"`
	Company    string   `json:"company" yaml:"company"`
	StartDate  string   `json:"start_date" yaml:"start_date"`
	EndDate    *string  `json:"end_date" yaml:"end_date"`
	Location   *string  `json:"location" yaml:"location"`
	Highlights []string `json:"highlights,omitempty" yaml:"highlights,omitempty"`
}

// Current reports whether the milestone has no end date.
func (m Milestone) Current() bool {
	return m.EndDate == nil || *m.EndDate == ""
}

// Point is a coordinate in track space (pixels, y grows downward).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Scale returns p*s.
func (p Point) Scale(s float64) Point { return Point{X: p.X * s, Y: p.Y * s} }
