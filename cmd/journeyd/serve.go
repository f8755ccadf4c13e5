package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/folio-labs/journey/internal/config"
	"github.com/folio-labs/journey/internal/content"
	"github.com/folio-labs/journey/internal/dispatcher"
	"github.com/folio-labs/journey/internal/influx"
	"github.com/folio-labs/journey/internal/logging"
	"github.com/folio-labs/journey/internal/monitor"
	"github.com/folio-labs/journey/internal/server"
	"github.com/folio-labs/journey/internal/storage"
	"github.com/folio-labs/journey/internal/timeline"
	"github.com/folio-labs/journey/internal/worker"
	"github.com/folio-labs/journey/pkg/core"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the timeline HTTP and websocket server",
	Long: `Loads milestones from the configured content store and serves:
  GET /healthcheck          service status
  GET /api/timeline         track, cards and beats (?mobile=1)
  GET /api/timeline/frame   one frame for ?p=<scroll fraction>
  GET /timeline.svg         static rendering (?p=, ?mobile=1)
  GET /ws                   live session driven by scroll messages`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides server.addr")
}

func runServe(cmd *cobra.Command, args []string) error {
	initLogging(true)
	Logger.Info("Starting up...", "version", CurrentVersion, "buildDate", BuildDate)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := initStorage()
	if err != nil {
		return err
	}
	defer closeStorage(store)

	milestones, err := storage.Load(ctx, store)
	if err != nil {
		// keep serving an empty track; the refresher picks the content up later
		Logger.Error("Failed to load milestones", "error", err)
		milestones = nil
	}
	contentCtx := content.NewContext(milestones)
	Logger.Info("Loaded milestones", "milestones", contentCtx.Len())

	observer, closeAnalytics, err := initAnalytics(ctx)
	if err != nil {
		return err
	}
	defer closeAnalytics()

	opts, err := sessionOptions(observer)
	if err != nil {
		return fmt.Errorf("invalid session settings: %w", err)
	}

	serverCfg := config.GetServerConfig()
	if serveAddr != "" {
		serverCfg.Addr = serveAddr
	}

	svc := server.NewService(server.Dependencies{
		Content:        contentCtx,
		Tracks:         TrackCache,
		Sessions:       ActiveSessions,
		Session:        opts,
		AllowedOrigins: serverCfg.AllowedOrigins,
		Logger:         Logger,
		BaseContext:    ctx,
	})

	refresher := &content.Refresher{
		Store:    store,
		Context:  contentCtx,
		Interval: config.GetStorageConfig().RefreshInterval,
		Logger:   Logger,
		OnChange: func(ms []core.Milestone) { svc.Broadcast(ms) },
	}
	go refresher.Run(ctx)

	monitorService := monitor.NewService(monitor.Dependencies{
		DB:              statusDB(),
		Logger:          Logger,
		Sessions:        ActiveSessions,
		Tracks:          TrackCache,
		StatusDir:       viper.GetString("logsDir"),
		Interval:        serverCfg.MonitorInterval,
		IsDatabaseValid: func() bool { return DBManager != nil && DBManager.IsValid },
	})
	if err := monitorService.Start(); err != nil {
		Logger.Warn("Failed to start status monitor", "error", err)
	}
	defer monitorService.Stop()

	httpServer := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: serverCfg.ReadTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		Logger.Info("Listening", "addr", serverCfg.Addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			Logger.Error("HTTP server failed", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	Logger.Info("Shutting down...")
	timeout := serverCfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// sockets are hijacked, so sessions are ended before the listener
	if err := svc.Shutdown(shutdownCtx); err != nil {
		Logger.Warn("Sessions did not end in time", "error", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		Logger.Warn("HTTP server shutdown failed", "error", err)
	}
	Logger.Info("Stopped")
	return nil
}

// initAnalytics connects InfluxDB and routes session events to it through the
// worker manager. Disabled analytics return a nil observer.
func initAnalytics(ctx context.Context) (timeline.Observer, func(), error) {
	influxCfg := config.GetInfluxConfig()
	if !influxCfg.Enabled {
		Logger.Info("Analytics disabled")
		return nil, func() {}, nil
	}

	InfluxManager = influx.NewManager(componentLogger("influx"), influxCfg)
	if err := InfluxManager.Connect(ctx); err != nil {
		Logger.Error("Failed to connect to InfluxDB", "error", err)
		return nil, func() {}, nil
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(componentLogger("analytics")))
	if err != nil {
		_ = InfluxManager.Close()
		return nil, nil, fmt.Errorf("failed to create analytics dispatcher: %w", err)
	}

	manager := worker.NewManager(worker.Dependencies{
		Recorder: InfluxManager,
		Logger:   Logger,
		IsRecorderValid: func() bool {
			return InfluxManager.IsValid || InfluxManager.BackupWriter != nil
		},
	})
	manager.RegisterHandlers(d)
	Logger.Info("Analytics handlers registered with dispatcher", "remote", InfluxManager.IsValid)

	return manager, func() {
		d.Close()
		if dropped := manager.Dropped(); dropped > 0 {
			Logger.Warn("Analytics events dropped", "count", dropped)
		}
		if err := InfluxManager.Close(); err != nil {
			Logger.Warn("Failed to close InfluxDB", "error", err)
		}
	}, nil
}

func statusDB() *gorm.DB {
	if DBManager == nil {
		return nil
	}
	return DBManager.DB
}
