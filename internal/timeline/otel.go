package timeline

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/folio-labs/journey/internal/timeline"

type instruments struct {
	active  metric.Int64UpDownCounter
	frames  metric.Int64Counter
	reached metric.Int64Counter
}

var (
	instrumentsOnce sync.Once
	sessionMetrics  instruments
)

// metrics returns the session instruments from the global meter provider.
// An instrument that cannot be created is replaced by a no-op.
func metrics() instruments {
	instrumentsOnce.Do(func() {
		m := otel.Meter(instrumentationName)
		var err error

		sessionMetrics.active, err = m.Int64UpDownCounter("timeline.sessions.active",
			metric.WithDescription("Scroll sessions currently mounted"))
		if err != nil {
			otel.Handle(err)
			sessionMetrics.active = noop.Int64UpDownCounter{}
		}

		sessionMetrics.frames, err = m.Int64Counter("timeline.frames.sent",
			metric.WithDescription("Frames pushed to clients"))
		if err != nil {
			otel.Handle(err)
			sessionMetrics.frames = noop.Int64Counter{}
		}

		sessionMetrics.reached, err = m.Int64Counter("timeline.milestones.reached",
			metric.WithDescription("Milestones reached for the first time in a session"))
		if err != nil {
			otel.Handle(err)
			sessionMetrics.reached = noop.Int64Counter{}
		}
	})
	return sessionMetrics
}
