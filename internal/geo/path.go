package geo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/folio-labs/journey/pkg/core"
)

// Path serializes the track of n milestones as an SVG path description.
// Without swerve the track is the single vertical line the point solver
// walks along.
func (l Layout) Path(n int) string {
	var b strings.Builder
	b.WriteString("M")
	writePoint(&b, core.Point{X: l.Axis, Y: 0})
	if n <= 0 {
		return b.String()
	}

	if !l.Swerves() {
		b.WriteString(" L")
		writePoint(&b, core.Point{X: l.Axis, Y: l.TotalHeight(n)})
		return b.String()
	}

	for _, seg := range l.Segments(n) {
		writeCubic(&b, seg.In)
		writeCubic(&b, seg.Out)
	}
	return b.String()
}

func writeCubic(b *strings.Builder, c Cubic) {
	b.WriteString(" C")
	writePoint(b, c.P1)
	b.WriteByte(' ')
	writePoint(b, c.P2)
	b.WriteByte(' ')
	writePoint(b, c.P3)
}

func writePoint(b *strings.Builder, p core.Point) {
	b.WriteString(formatFloat(p.X))
	b.WriteByte(',')
	b.WriteString(formatFloat(p.Y))
}

func formatFloat(v float64) string {
	// avoid "-0" in the output
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParsePath reads back a path produced by Path into its curves. Line
// commands come back as degenerate cubics with control points on the line.
func ParsePath(d string) ([]Cubic, error) {
	fields := strings.Fields(d)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "M") {
		return nil, fmt.Errorf("path must start with M: %q", d)
	}

	cur, err := parsePoint(strings.TrimPrefix(fields[0], "M"))
	if err != nil {
		return nil, err
	}

	var curves []Cubic
	for i := 1; i < len(fields); {
		switch {
		case strings.HasPrefix(fields[i], "C"):
			if i+2 >= len(fields) {
				return nil, fmt.Errorf("truncated C command at field %d", i)
			}
			var pts [3]core.Point
			for k := 0; k < 3; k++ {
				pts[k], err = parsePoint(strings.TrimPrefix(fields[i+k], "C"))
				if err != nil {
					return nil, err
				}
			}
			curves = append(curves, Cubic{P0: cur, P1: pts[0], P2: pts[1], P3: pts[2]})
			cur = pts[2]
			i += 3
		case strings.HasPrefix(fields[i], "L"):
			end, err := parsePoint(strings.TrimPrefix(fields[i], "L"))
			if err != nil {
				return nil, err
			}
			curves = append(curves, Cubic{
				P0: cur,
				P1: cur.Add(end.Sub(cur).Scale(1.0 / 3)),
				P2: cur.Add(end.Sub(cur).Scale(2.0 / 3)),
				P3: end,
			})
			cur = end
			i++
		default:
			return nil, fmt.Errorf("unsupported path command %q", fields[i])
		}
	}
	return curves, nil
}

func parsePoint(s string) (core.Point, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return core.Point{}, fmt.Errorf("invalid point %q", s)
	}
	x, err := strconv.ParseFloat(xs, 64)
	if err != nil {
		return core.Point{}, fmt.Errorf("invalid x in %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(ys, 64)
	if err != nil {
		return core.Point{}, fmt.Errorf("invalid y in %q: %w", s, err)
	}
	return core.Point{X: x, Y: y}, nil
}
