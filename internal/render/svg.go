// Package render draws a track and its milestone anchors as a standalone SVG
// document.
package render

import (
	"fmt"
	"html/template"
	"io"

	"github.com/folio-labs/journey/internal/geo"
	"github.com/folio-labs/journey/pkg/core"
)

// ContentType is the media type of the rendered document.
const ContentType = "image/svg+xml"

// Options controls the optional parts of the drawing.
type Options struct {
	// Frame, when set, draws the marker and lights reached anchors.
	Frame   *core.Frame
	Padding float64
	Radius  float64
}

const (
	defaultPadding = 24
	defaultRadius  = 6
)

type anchorView struct {
	X, Y   float64
	R      float64
	Side   core.Side
	Active bool
	Title  string
}

type view struct {
	MinX, MinY    float64
	Width, Height float64
	Path          string
	Anchors       []anchorView
	Marker        *core.Point
	MarkerR       float64
}

var svgTemplate = template.Must(template.New("track").Parse(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="{{.MinX}} {{.MinY}} {{.Width}} {{.Height}}" width="{{.Width}}" height="{{.Height}}">
  <path class="track" d="{{.Path}}" fill="none" stroke="currentColor" stroke-width="2"/>
{{- range .Anchors}}
  <circle class="anchor {{.Side}}{{if .Active}} active{{end}}" cx="{{.X}}" cy="{{.Y}}" r="{{.R}}"><title>{{.Title}}</title></circle>
{{- end}}
{{- with .Marker}}
  <circle class="marker" cx="{{.X}}" cy="{{.Y}}" r="{{$.MarkerR}}"/>
{{- end}}
</svg>
`))

// SVG writes the document for track and its cards to w.
func SVG(w io.Writer, track geo.Track, cards []core.Card, opts Options) error {
	pad := opts.Padding
	if pad <= 0 {
		pad = defaultPadding
	}
	r := opts.Radius
	if r <= 0 {
		r = defaultRadius
	}

	v := view{
		MinX:   track.Bounds.Min.X - pad,
		MinY:   -pad,
		Width:  track.Width() + 2*pad,
		Height: track.Height() + 2*pad,
		Path:   track.Path,
	}

	var beats []bool
	if opts.Frame != nil {
		beats = opts.Frame.Beats
		m := opts.Frame.Marker
		v.Marker = &m
		v.MarkerR = r * 1.5
	}

	v.Anchors = make([]anchorView, len(cards))
	for i, c := range cards {
		v.Anchors[i] = anchorView{
			X:      c.Anchor.X,
			Y:      c.Anchor.Y,
			R:      r,
			Side:   c.Side,
			Active: i < len(beats) && beats[i],
			Title:  fmt.Sprintf("%s, %s", c.Milestone.Role, c.Milestone.Company),
		}
	}

	if err := svgTemplate.Execute(w, v); err != nil {
		return fmt.Errorf("render svg: %w", err)
	}
	return nil
}
