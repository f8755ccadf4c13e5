package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/folio-labs/journey/internal/beat"
	"github.com/folio-labs/journey/internal/cache"
	"github.com/folio-labs/journey/internal/config"
	"github.com/folio-labs/journey/internal/database"
	"github.com/folio-labs/journey/internal/influx"
	"github.com/folio-labs/journey/internal/logging"
	intOtel "github.com/folio-labs/journey/internal/otel"
	"github.com/folio-labs/journey/internal/progress"
	"github.com/folio-labs/journey/internal/timeline"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	ServiceName string = "journeyd"
)

// flags
var (
	configDir string
	logLevel  string
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	// LogFile receives the text log and, when OTel is enabled, the exported records
	LogFile *os.File

	// logOut is where the text and zerolog loggers write
	logOut io.Writer = os.Stderr

	// DBManager is set when the gorm store is selected
	DBManager *database.Manager

	// InfluxManager is set when analytics are enabled
	InfluxManager *influx.Manager

	// TrackCache is shared by the HTTP handlers, the sessions and the monitor
	TrackCache *cache.TrackCache = cache.NewTrackCache()

	// ActiveSessions counts mounted websocket sessions
	ActiveSessions *cache.SafeCounter = &cache.SafeCounter{}

	SessionStartTime time.Time = time.Now()
)

var rootCmd = &cobra.Command{
	Use:   "journeyd",
	Short: "Scroll-driven experience timeline server",
	Long: `journeyd serves a portfolio experience timeline: a swerving track with one
card per milestone and a marker that follows the visitor's scroll position.

Run "journeyd serve" to start the HTTP and websocket server. The render and
frame commands compute the same geometry offline.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// load config
		if err := config.Load(configDir); err != nil {
			config.SetDefaults()
			// logging is not set up yet
			fmt.Fprintf(cmd.ErrOrStderr(), "Failed to load config, using defaults: %v\n", err)
		}
		if logLevel != "" {
			viper.Set("logLevel", logLevel)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdownLogging()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (built %s)\n", ServiceName, CurrentVersion, BuildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "directory containing "+config.ConfigName)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logLevel from the config file")

	rootCmd.AddCommand(versionCmd, serveCmd, renderCmd, frameCmd, seedCmd, simulateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initLogging sets up slog. With toFile the text log is written to stdout and
// to a fresh file in logsDir, and the OTel provider exports to the same file.
// Without it, logs go to stderr so command output stays clean.
func initLogging(toFile bool) {
	SlogManager = logging.NewSlogManager(ServiceName)
	level := viper.GetString("logLevel")

	if !toFile {
		logOut = os.Stderr
		SlogManager.Setup(logOut, level, nil)
		Logger = SlogManager.Logger()
		return
	}

	logOut = os.Stdout
	var err error
	LogFile, err = logging.OpenLogFile(viper.GetString("logsDir"), ServiceName, SessionStartTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log file, logging to stdout only: %v\n", err)
	} else {
		logOut = io.MultiWriter(os.Stdout, LogFile)
	}

	otelCfg := config.GetOTelConfig()
	var otelErr error
	if otelCfg.Enabled {
		var logWriter io.Writer
		if LogFile != nil {
			logWriter = LogFile
		}
		OTelProvider, otelErr = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: CurrentVersion,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      logWriter,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
			OnError: func(err error) {
				Logger.Warn("OTel error", "error", err)
			},
		})
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(logOut, level, otelLogProvider)
	Logger = SlogManager.Logger()

	if LogFile != nil {
		Logger.Info("Logging to file", "path", LogFile.Name())
	}
	switch {
	case otelErr != nil:
		Logger.Error("Failed to initialize OTel provider", "error", otelErr)
	case OTelProvider != nil && otelCfg.Endpoint != "":
		Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
	case OTelProvider != nil:
		Logger.Info("OTel provider initialized")
	}
}

func shutdownLogging() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if SlogManager != nil {
		_ = SlogManager.Flush(ctx)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil && Logger != nil {
			Logger.Warn("Failed to shut down OTel provider", "error", err)
		}
		OTelProvider = nil
	}
	if LogFile != nil {
		_ = LogFile.Close()
		LogFile = nil
	}
}

// componentLogger builds the zerolog logger handed to the database and
// analytics managers.
func componentLogger(component string) zerolog.Logger {
	return logging.NewZerolog(logOut, viper.GetString("logLevel"), component)
}

// sessionOptions builds the per-visitor session settings from config.
func sessionOptions(observer timeline.Observer) (timeline.Options, error) {
	layoutCfg := config.GetLayoutConfig()
	if err := layoutCfg.Validate(); err != nil {
		return timeline.Options{}, err
	}
	mobileCfg := config.GetMobileLayoutConfig()
	if err := mobileCfg.Validate(); err != nil {
		return timeline.Options{}, fmt.Errorf("mobile %w", err)
	}

	motion := config.GetMotionConfig()
	curve, err := progress.ParseCurve(motion.Curve, motion.CurveStrength)
	if err != nil {
		return timeline.Options{}, err
	}
	mode, err := beat.ParseMode(motion.BeatMode)
	if err != nil {
		return timeline.Options{}, err
	}

	opts := timeline.Options{
		Layout:           layoutCfg,
		MobileLayout:     mobileCfg,
		Curve:            curve,
		Spring:           motion.Spring,
		BeatMode:         mode,
		EntranceDistance: motion.EntranceDist,
		IdleTimeout:      motion.IdleTimeout,
		Logger:           Logger,
		DispatcherLogger: logging.NewDispatcherLogger(componentLogger("dispatcher")),
		Observer:         observer,
		Tracks:           TrackCache,
	}
	return opts, nil
}
