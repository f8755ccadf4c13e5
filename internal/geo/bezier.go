package geo

import "github.com/folio-labs/journey/pkg/core"

// Cubic is a cubic Bézier curve.
type Cubic struct {
	P0, P1, P2, P3 core.Point
}

// At evaluates B(t) = (1-t)³P0 + 3(1-t)²tP1 + 3(1-t)t²P2 + t³P3.
// t is clamped to [0,1].
func (c Cubic) At(t float64) core.Point {
	t = clamp01(t)
	u := 1 - t
	b0 := u * u * u
	b1 := 3 * u * u * t
	b2 := 3 * u * t * t
	b3 := t * t * t
	return core.Point{
		X: b0*c.P0.X + b1*c.P1.X + b2*c.P2.X + b3*c.P3.X,
		Y: b0*c.P0.Y + b1*c.P1.Y + b2*c.P2.Y + b3*c.P3.Y,
	}
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
