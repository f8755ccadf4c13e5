package config

import (
	"fmt"
	"time"

	"github.com/folio-labs/journey/internal/geo"
	"github.com/folio-labs/journey/internal/progress"
	"github.com/spf13/viper"
)

// ConfigName is the config file looked up in the config directory.
const ConfigName = "journey.cfg.json"

// MemoryConfig holds file-backed content store settings
type MemoryConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// GormConfig holds database content store settings
type GormConfig struct {
	Table         string `json:"table" mapstructure:"table"`
	SqlitePath    string `json:"sqlitePath" mapstructure:"sqlitePath"`
	AutoMigrate   bool   `json:"autoMigrate" mapstructure:"autoMigrate"`
	FallbackLocal bool   `json:"fallbackLocal" mapstructure:"fallbackLocal"`
}

// RestConfig holds hosted backend REST settings
type RestConfig struct {
	BaseURL string        `json:"baseUrl" mapstructure:"baseUrl"`
	APIKey  string        `json:"apiKey" mapstructure:"apiKey"`
	Table   string        `json:"table" mapstructure:"table"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// StorageConfig selects and configures the content store
type StorageConfig struct {
	Type            string        `json:"type" mapstructure:"type"`
	RefreshInterval time.Duration `json:"refreshInterval" mapstructure:"refreshInterval"`
	Memory          MemoryConfig  `json:"memory" mapstructure:"memory"`
	Gorm            GormConfig    `json:"gorm" mapstructure:"gorm"`
	Rest            RestConfig    `json:"rest" mapstructure:"rest"`
}

// MotionConfig holds the progress pipeline settings
type MotionConfig struct {
	Curve         string                `json:"curve" mapstructure:"curve"`
	CurveStrength float64               `json:"curveStrength" mapstructure:"curveStrength"`
	Spring        progress.SpringConfig `json:"spring" mapstructure:"spring"`
	BeatMode      string                `json:"beatMode" mapstructure:"beatMode"`
	EntranceDist  float64               `json:"entranceDistance" mapstructure:"entranceDistance"`
	IdleTimeout   time.Duration         `json:"idleTimeout" mapstructure:"idleTimeout"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string        `json:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `json:"readTimeout" mapstructure:"readTimeout"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout" mapstructure:"shutdownTimeout"`
	AllowedOrigins  []string      `json:"allowedOrigins" mapstructure:"allowedOrigins"`
	MonitorInterval time.Duration `json:"monitorInterval" mapstructure:"monitorInterval"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds analytics settings
type InfluxConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Protocol   string `json:"protocol" mapstructure:"protocol"`
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./journeylogs")

	def := geo.DefaultLayout()
	viper.SetDefault("layout.height", def.Height)
	viper.SetDefault("layout.swerve", def.Swerve)
	viper.SetDefault("layout.milestoneY", def.MilestoneY)
	viper.SetDefault("layout.bend", def.Bend)
	viper.SetDefault("layout.controlIn", def.ControlIn)
	viper.SetDefault("layout.controlOut", def.ControlOut)
	viper.SetDefault("layout.axis", def.Axis)
	viper.SetDefault("layout.mobileAxis", 24.0)

	viper.SetDefault("motion.curve", "settle")
	viper.SetDefault("motion.curveStrength", 0.85)
	viper.SetDefault("motion.spring.fps", progress.DefaultFPS)
	viper.SetDefault("motion.spring.frequency", progress.DefaultFrequency)
	viper.SetDefault("motion.spring.damping", progress.DefaultDamping)
	viper.SetDefault("motion.beatMode", "live")
	viper.SetDefault("motion.entranceDistance", 160.0)
	viper.SetDefault("motion.idleTimeout", "5m")

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.readTimeout", "10s")
	viper.SetDefault("server.shutdownTimeout", "10s")
	viper.SetDefault("server.allowedOrigins", []string{})
	viper.SetDefault("server.monitorInterval", "1m")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.refreshInterval", "1m")
	viper.SetDefault("storage.memory.path", "./content/experience.json")
	viper.SetDefault("storage.gorm.table", "experiences")
	viper.SetDefault("storage.gorm.sqlitePath", "")
	viper.SetDefault("storage.gorm.autoMigrate", true)
	viper.SetDefault("storage.gorm.fallbackLocal", true)
	viper.SetDefault("storage.rest.baseUrl", "http://localhost:54321")
	viper.SetDefault("storage.rest.apiKey", "")
	viper.SetDefault("storage.rest.table", "experiences")
	viper.SetDefault("storage.rest.timeout", "15s")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "portfolio")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "portfolio")
	viper.SetDefault("influx.bucket", "journey_analytics")
	viper.SetDefault("influx.backupPath", "./journeylogs/analytics_backup.lp.gz")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "journey")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(ConfigName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetLayoutConfig returns the desktop track layout.
func GetLayoutConfig() geo.Layout {
	return geo.Layout{
		Height:     viper.GetFloat64("layout.height"),
		Swerve:     viper.GetFloat64("layout.swerve"),
		MilestoneY: viper.GetFloat64("layout.milestoneY"),
		Bend:       viper.GetFloat64("layout.bend"),
		ControlIn:  viper.GetFloat64("layout.controlIn"),
		ControlOut: viper.GetFloat64("layout.controlOut"),
		Axis:       viper.GetFloat64("layout.axis"),
	}
}

// GetMobileLayoutConfig returns the layout used for narrow viewports: no
// swerve, rail at layout.mobileAxis.
func GetMobileLayoutConfig() geo.Layout {
	l := GetLayoutConfig().Mobile()
	l.Axis = viper.GetFloat64("layout.mobileAxis")
	return l
}

// GetMotionConfig returns the progress pipeline settings.
func GetMotionConfig() MotionConfig {
	return MotionConfig{
		Curve:         viper.GetString("motion.curve"),
		CurveStrength: viper.GetFloat64("motion.curveStrength"),
		Spring: progress.SpringConfig{
			FPS:       viper.GetInt("motion.spring.fps"),
			Frequency: viper.GetFloat64("motion.spring.frequency"),
			Damping:   viper.GetFloat64("motion.spring.damping"),
		},
		BeatMode:     viper.GetString("motion.beatMode"),
		EntranceDist: viper.GetFloat64("motion.entranceDistance"),
		IdleTimeout:  viper.GetDuration("motion.idleTimeout"),
	}
}

// GetServerConfig returns the HTTP listener settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            viper.GetString("server.addr"),
		ReadTimeout:     viper.GetDuration("server.readTimeout"),
		ShutdownTimeout: viper.GetDuration("server.shutdownTimeout"),
		AllowedOrigins:  viper.GetStringSlice("server.allowedOrigins"),
		MonitorInterval: viper.GetDuration("server.monitorInterval"),
	}
}

// GetStorageConfig returns the content store settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:            viper.GetString("storage.type"),
		RefreshInterval: viper.GetDuration("storage.refreshInterval"),
		Memory: MemoryConfig{
			Path: viper.GetString("storage.memory.path"),
		},
		Gorm: GormConfig{
			Table:         viper.GetString("storage.gorm.table"),
			SqlitePath:    viper.GetString("storage.gorm.sqlitePath"),
			AutoMigrate:   viper.GetBool("storage.gorm.autoMigrate"),
			FallbackLocal: viper.GetBool("storage.gorm.fallbackLocal"),
		},
		Rest: RestConfig{
			BaseURL: viper.GetString("storage.rest.baseUrl"),
			APIKey:  viper.GetString("storage.rest.apiKey"),
			Table:   viper.GetString("storage.rest.table"),
			Timeout: viper.GetDuration("storage.rest.timeout"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the analytics settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		Protocol:   viper.GetString("influx.protocol"),
		Host:       viper.GetString("influx.host"),
		Port:       viper.GetString("influx.port"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}
