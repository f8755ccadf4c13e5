// Package progress maps the scroll fraction of the tracked region to the
// stepped progress the track is drawn with.
package progress

import (
	"fmt"
	"math"
	"strings"
)

// Curve reshapes the fraction f travelled inside one milestone's band.
// Every curve maps 0 to 0 and 1 to 1 and is non-decreasing, so Stepped stays
// continuous across band boundaries.
type Curve interface {
	Apply(f float64) float64
}

// Settle slows down around f = 0.5, the milestone target, so the marker
// arrives at a card and dwells there before moving on.
// Dwell in [0,1) controls how flat the plateau is; 0 is linear.
// Arctan is the literal soft-clamp formula; Settle is its inverse.
type Settle struct {
	Dwell float64
}

// Apply implements Curve.
func (s Settle) Apply(f float64) float64 {
	f = clamp01(f)
	d := clampDwell(s.Dwell)
	if d == 0 {
		return f
	}
	theta := d * math.Pi
	// inverse of the arctangent soft-clamp: tan is flattest at its centre
	out := 0.5 + math.Tan((f-0.5)*theta)/(2*math.Tan(theta/2))
	return clamp01(out)
}

// Arctan is the arctangent soft-clamp 0.5 + atan((f-0.5)*k) / (π/c), with c
// chosen so the curve passes through (0,0) and (1,1). It moves fastest at the
// centre of a band and eases in and out at its edges.
type Arctan struct {
	K float64
}

// Apply implements Curve.
func (a Arctan) Apply(f float64) float64 {
	f = clamp01(f)
	if a.K <= 0 {
		return f
	}
	// π/c == 2*atan(k/2)
	out := 0.5 + math.Atan((f-0.5)*a.K)/(2*math.Atan(a.K/2))
	return clamp01(out)
}

// Linear leaves the fraction untouched.
type Linear struct{}

// Apply implements Curve.
func (Linear) Apply(f float64) float64 { return clamp01(f) }

// DefaultCurve is the curve used when none is configured.
var DefaultCurve Curve = Settle{Dwell: 0.85}

// ParseCurve builds a curve from its configuration name and strength.
// strength is the dwell for "settle" and k for "arctan".
func ParseCurve(name string, strength float64) (Curve, error) {
	switch strings.ToLower(name) {
	case "", "settle":
		return Settle{Dwell: strength}, nil
	case "arctan":
		return Arctan{K: strength}, nil
	case "linear":
		return Linear{}, nil
	default:
		return nil, fmt.Errorf("unknown progress curve %q", name)
	}
}

// Stepped maps linear progress p of n milestones with DefaultCurve.
func Stepped(p float64, n int) float64 {
	return SteppedWith(DefaultCurve, p, n)
}

// SteppedWith maps linear progress p to stepped progress using curve c.
// With no milestones p is returned unchanged.
func SteppedWith(c Curve, p float64, n int) float64 {
	if n <= 0 {
		return p
	}
	if c == nil {
		c = DefaultCurve
	}
	p = clamp01(p)

	raw := p * float64(n)
	i := math.Floor(raw)
	if int(i) >= n {
		return 1
	}
	f := raw - i
	return (i + c.Apply(f)) / float64(n)
}

func clampDwell(d float64) float64 {
	switch {
	case d != d, d <= 0:
		return 0
	case d >= 0.999:
		return 0.999
	}
	return d
}

func clamp01(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
