package geo

import (
	"math"

	"github.com/folio-labs/journey/pkg/core"
)

// PointAt returns the point on the track of n milestones for stepped
// progress p. It evaluates the same Segment values the path serializer emits,
// so PointAt(Target(i, n), n) is the anchor of milestone i.
func (l Layout) PointAt(p float64, n int) core.Point {
	if n <= 0 {
		return core.Point{X: l.Axis, Y: 0}
	}
	p = clamp01(p)

	raw := p * float64(n)
	i := int(math.Floor(raw))
	if i > n-1 {
		i = n - 1
	}
	f := raw - float64(i)

	seg := l.Segment(i)
	if f < 0.5 {
		return seg.In.At(f * 2)
	}
	return seg.Out.At((f - 0.5) * 2)
}
