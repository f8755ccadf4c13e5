package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/folio-labs/journey/internal/stream"
	"github.com/folio-labs/journey/pkg/core"
	"github.com/folio-labs/journey/pkg/streaming"
	"github.com/spf13/cobra"
)

// simulate flags
var (
	simURL      string
	simSteps    int
	simInterval time.Duration
	simSettle   time.Duration
	simMobile   bool
	simViewport float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Scroll a live session from top to bottom",
	Long: `Connects to a running server's /ws endpoint, reports evenly spaced scroll
positions and prints every frame the server sends back. Useful for checking
a deployment end to end.

Example:
  journeyd simulate --url ws://localhost:8080/ws --steps 40 --interval 50ms`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simURL, "url", "ws://localhost:8080/ws", "session endpoint")
	simulateCmd.Flags().IntVar(&simSteps, "steps", 20, "number of scroll reports")
	simulateCmd.Flags().DurationVar(&simInterval, "interval", 100*time.Millisecond, "delay between reports")
	simulateCmd.Flags().DurationVar(&simSettle, "settle", time.Second, "time to keep reading after the last report")
	simulateCmd.Flags().BoolVar(&simMobile, "mobile", false, "request the mobile layout")
	simulateCmd.Flags().Float64Var(&simViewport, "viewport", 800, "viewport height in track pixels")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	initLogging(false)
	if simSteps < 1 {
		return fmt.Errorf("--steps must be at least 1")
	}

	target, err := url.Parse(simURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if simMobile {
		q := target.Query()
		q.Set("mobile", "1")
		target.RawQuery = q.Encode()
	}

	ctx := cmd.Context()
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := stream.Dial(dialCtx, target.String(), nil, Logger)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	env, err := client.WaitFor(ctx, streaming.TypeMilestones)
	if err != nil {
		return err
	}
	var track streaming.MilestonesPayload
	if err := json.Unmarshal(env.Payload, &track); err != nil {
		return fmt.Errorf("decode milestones: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s: %d milestones, track %.0fx%.0f\n", track.Session, len(track.Cards), track.Width, track.Height)

	readCtx, stopReading := context.WithCancel(ctx)
	printed := make(chan int, 1)
	go func() { printed <- printFrames(readCtx, client, out) }()

	for k := 0; k <= simSteps; k++ {
		f := float64(k) / float64(simSteps)
		err := client.Send(streaming.TypeScroll, streaming.ScrollPayload{
			Fraction:       f,
			ViewportTop:    f*track.Height - simViewport/2,
			ViewportHeight: simViewport,
		})
		if err != nil {
			stopReading()
			<-printed
			return fmt.Errorf("send scroll: %w", err)
		}
		select {
		case <-ctx.Done():
			stopReading()
			<-printed
			return ctx.Err()
		case <-time.After(simInterval):
		}
	}

	select {
	case <-ctx.Done():
	case <-time.After(simSettle):
	}
	stopReading()
	frames := <-printed
	fmt.Fprintf(out, "received %d frames\n", frames)
	return nil
}

func printFrames(ctx context.Context, client *stream.Client, out io.Writer) int {
	frames := 0
	for {
		env, err := client.Next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				Logger.Debug("Stopped reading frames", "error", err)
			}
			return frames
		}

		switch env.Type {
		case streaming.TypeFrame:
			var f core.Frame
			if err := json.Unmarshal(env.Payload, &f); err != nil {
				Logger.Warn("Failed to decode frame", "error", err)
				continue
			}
			frames++
			fmt.Fprintf(out, "#%d stepped=%.3f marker=(%.1f, %.1f) beats=%s\n",
				f.Seq, f.Stepped, f.Marker.X, f.Marker.Y, beatString(f.Beats))
		case streaming.TypeBye:
			var bye streaming.ByePayload
			_ = json.Unmarshal(env.Payload, &bye)
			fmt.Fprintf(out, "bye: %s\n", bye.Reason)
			return frames
		case streaming.TypeError:
			var e streaming.ErrorPayload
			_ = json.Unmarshal(env.Payload, &e)
			fmt.Fprintf(out, "error for %s: %s\n", e.For, e.Message)
		}
	}
}

func beatString(beats []bool) string {
	b := make([]byte, len(beats))
	for i, on := range beats {
		b[i] = '.'
		if on {
			b[i] = '*'
		}
	}
	return string(b)
}
