package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/folio-labs/journey/internal/geo"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"layout": { "swerve": 150 },
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 150.0, viper.GetFloat64("layout.swerve"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./journeylogs", viper.GetString("logsDir"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, "postgres", viper.GetString("db.username"))
	assert.Equal(t, "portfolio", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, ":8080", viper.GetString("server.addr"))
	assert.Equal(t, "live", viper.GetString("motion.beatMode"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetLayoutConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, geo.DefaultLayout(), GetLayoutConfig())

	mobile := GetMobileLayoutConfig()
	assert.Equal(t, 0.0, mobile.Swerve)
	assert.Equal(t, 24.0, mobile.Axis)
	assert.Equal(t, 480.0, mobile.Height)
}

func TestGetLayoutConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"layout": { "height": 600, "swerve": 120, "milestoneY": 300, "axis": 10 }
	}`)))

	l := GetLayoutConfig()
	assert.Equal(t, 600.0, l.Height)
	assert.Equal(t, 120.0, l.Swerve)
	assert.Equal(t, 300.0, l.MilestoneY)
	assert.Equal(t, 10.0, l.Axis)
	assert.Equal(t, 80.0, l.Bend)
	require.NoError(t, l.Validate())
}

func TestGetMotionConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	mc := GetMotionConfig()
	assert.Equal(t, "settle", mc.Curve)
	assert.Equal(t, 0.85, mc.CurveStrength)
	assert.Equal(t, 60, mc.Spring.FPS)
	assert.Equal(t, 6.0, mc.Spring.Frequency)
	assert.Equal(t, 1.0, mc.Spring.Damping)
	assert.Equal(t, "live", mc.BeatMode)
	assert.Equal(t, 160.0, mc.EntranceDist)
	assert.Equal(t, 5*time.Minute, mc.IdleTimeout)
}

func TestGetMotionConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"motion": {
			"curve": "arctan",
			"curveStrength": 6,
			"spring": { "fps": 30, "frequency": 4.5, "damping": 0.7 },
			"beatMode": "sticky",
			"idleTimeout": "30s"
		}
	}`)))

	mc := GetMotionConfig()
	assert.Equal(t, "arctan", mc.Curve)
	assert.Equal(t, 6.0, mc.CurveStrength)
	assert.Equal(t, 30, mc.Spring.FPS)
	assert.Equal(t, 4.5, mc.Spring.Frequency)
	assert.Equal(t, 0.7, mc.Spring.Damping)
	assert.Equal(t, "sticky", mc.BeatMode)
	assert.Equal(t, 30*time.Second, mc.IdleTimeout)
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, time.Minute, cfg.RefreshInterval)
	assert.Equal(t, "./content/experience.json", cfg.Memory.Path)
	assert.Equal(t, "experiences", cfg.Gorm.Table)
	assert.Equal(t, true, cfg.Gorm.AutoMigrate)
	assert.Equal(t, true, cfg.Gorm.FallbackLocal)
	assert.Equal(t, "experiences", cfg.Rest.Table)
	assert.Equal(t, 15*time.Second, cfg.Rest.Timeout)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"type": "rest",
			"rest": { "baseUrl": "https://abc.example.co", "apiKey": "anon", "timeout": "3s" }
		}
	}`)))

	sc := GetStorageConfig()
	assert.Equal(t, "rest", sc.Type)
	assert.Equal(t, "https://abc.example.co", sc.Rest.BaseURL)
	assert.Equal(t, "anon", sc.Rest.APIKey)
	assert.Equal(t, 3*time.Second, sc.Rest.Timeout)
}

func TestGetServerConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"server": { "addr": "127.0.0.1:9000", "allowedOrigins": ["https://me.dev"] }
	}`)))

	sc := GetServerConfig()
	assert.Equal(t, "127.0.0.1:9000", sc.Addr)
	assert.Equal(t, []string{"https://me.dev"}, sc.AllowedOrigins)
	assert.Equal(t, 10*time.Second, sc.ShutdownTimeout)
	assert.Equal(t, time.Minute, sc.MonitorInterval)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "journey", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetInfluxConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"influx": { "enabled": true, "host": "influx", "bucket": "visits" }
	}`)))

	ic := GetInfluxConfig()
	assert.Equal(t, true, ic.Enabled)
	assert.Equal(t, "influx", ic.Host)
	assert.Equal(t, "8086", ic.Port)
	assert.Equal(t, "visits", ic.Bucket)
}
