package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/folio-labs/journey/internal/config"
	"github.com/folio-labs/journey/internal/geo"
	"github.com/folio-labs/journey/internal/progress"
	"github.com/folio-labs/journey/internal/render"
	"github.com/folio-labs/journey/internal/storage"
	"github.com/folio-labs/journey/internal/storage/memory"
	"github.com/folio-labs/journey/internal/timeline"
	"github.com/folio-labs/journey/pkg/core"
	"github.com/spf13/cobra"
)

// offline command flags
var (
	inputPath    string
	outputPath   string
	renderFormat string
	renderMobile bool
	renderAt     float64
	frameAt      float64
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the timeline as SVG or JSON",
	Long: `Builds the track for the configured content and writes it to stdout or --out.

Examples:
  journeyd render --from content/experience.yaml > timeline.svg
  journeyd render --format json --mobile
  journeyd render --p 0.4 --out frame.svg`,
	RunE: runRender,
}

var frameCmd = &cobra.Command{
	Use:   "frame",
	Short: "Print the frame for one scroll position",
	Long: `Computes stepped progress, the marker point and the live beats for the
scroll fraction given with --p, without smoothing.`,
	RunE: runFrame,
}

func init() {
	for _, c := range []*cobra.Command{renderCmd, frameCmd} {
		c.Flags().StringVar(&inputPath, "from", "", "read milestones from a JSON or YAML file instead of the configured store")
		c.Flags().StringVarP(&outputPath, "out", "o", "", "write to a file instead of stdout")
		c.Flags().BoolVar(&renderMobile, "mobile", false, "use the mobile layout")
	}
	renderCmd.Flags().StringVar(&renderFormat, "format", "svg", "output format: svg or json")
	renderCmd.Flags().Float64Var(&renderAt, "p", math.NaN(), "draw the marker at this scroll fraction")
	frameCmd.Flags().Float64Var(&frameAt, "p", 0, "scroll fraction in [0, 1]")
}

type renderedTimeline struct {
	Track geo.Track   `json:"track"`
	Cards []core.Card `json:"cards"`
	Frame *core.Frame `json:"frame,omitempty"`
}

func runRender(cmd *cobra.Command, args []string) error {
	initLogging(false)

	pipe, err := offlinePipeline(cmd.Context())
	if err != nil {
		return err
	}
	track, err := geo.BuildTrack(pipe.Layout(), pipe.Len())
	if err != nil {
		return err
	}

	var frame *core.Frame
	if !math.IsNaN(renderAt) {
		f := pipe.Frame(renderAt)
		frame = &f
	}

	return withOutput(cmd, func(w io.Writer) error {
		switch strings.ToLower(renderFormat) {
		case "svg":
			return render.SVG(w, track, pipe.Cards(), render.Options{Frame: frame})
		case "json":
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(renderedTimeline{Track: track, Cards: pipe.Cards(), Frame: frame})
		default:
			return fmt.Errorf("unknown format %q", renderFormat)
		}
	})
}

func runFrame(cmd *cobra.Command, args []string) error {
	initLogging(false)

	if math.IsNaN(frameAt) || math.IsInf(frameAt, 0) {
		return fmt.Errorf("--p must be finite")
	}
	pipe, err := offlinePipeline(cmd.Context())
	if err != nil {
		return err
	}
	frame := pipe.Frame(frameAt)

	return withOutput(cmd, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(frame)
	})
}

// offlinePipeline loads milestones and builds a pipeline over the configured
// layout and curve.
func offlinePipeline(ctx context.Context) (*timeline.Pipeline, error) {
	milestones, err := loadMilestones(ctx)
	if err != nil {
		return nil, err
	}

	l := config.GetLayoutConfig()
	if renderMobile {
		l = config.GetMobileLayoutConfig()
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	motion := config.GetMotionConfig()
	curve, err := progress.ParseCurve(motion.Curve, motion.CurveStrength)
	if err != nil {
		return nil, err
	}
	return timeline.NewPipeline(l, curve, milestones), nil
}

func loadMilestones(ctx context.Context) ([]core.Milestone, error) {
	if inputPath != "" {
		ms, err := memory.ReadFile(inputPath)
		if err != nil {
			return nil, err
		}
		Logger.Debug("Read milestones", "path", inputPath, "milestones", len(ms))
		return ms, nil
	}

	store, err := initStorage()
	if err != nil {
		return nil, err
	}
	defer closeStorage(store)
	return storage.Load(ctx, store)
}

func withOutput(cmd *cobra.Command, write func(io.Writer) error) error {
	if outputPath == "" {
		return write(cmd.OutOrStdout())
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outputPath, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
