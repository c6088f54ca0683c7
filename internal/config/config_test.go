package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"method": "socket",
		"server": { "host": "0.0.0.0", "port": 50000 }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "socket", viper.GetString("method"))
	assert.Equal(t, "0.0.0.0", viper.GetString("server.host"))
	assert.Equal(t, 50000, viper.GetInt("server.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(writeConfig(t, `{}`))
	require.NoError(t, err)

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, "", viper.GetString("method"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, "link_performance", viper.GetString("influx.bucket"))
	assert.Equal(t, false, viper.GetBool("feed.enabled"))
	assert.Equal(t, "ws://localhost:5000/feed", viper.GetString("feed.url"))
	assert.Equal(t, true, viper.GetBool("monitor.enabled"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")

	// Defaults are still registered.
	assert.Equal(t, 46323, GetServerConfig().Port)
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

func TestTypedGetters_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, ServerConfig{Host: "127.0.0.1", Port: 46323}, GetServerConfig())
	assert.Equal(t, LinkConfig{
		AppName:       "TM-Proximity-Chat",
		Description:   "Bridge to TM2020 plugin for proximity chat",
		RetryInterval: 5 * time.Second,
	}, GetLinkConfig())
	assert.Equal(t, TelemetryConfig{
		RegionName:   "ManiaPlanet_Telemetry",
		PollInterval: 10 * time.Millisecond,
		Scale:        0.03125,
	}, GetTelemetryConfig())

	ic := GetInfluxConfig()
	assert.False(t, ic.Enabled)
	assert.Equal(t, "http", ic.Protocol)
	assert.Equal(t, "8086", ic.Port)

	assert.Equal(t, FeedConfig{URL: "ws://localhost:5000/feed"}, GetFeedConfig())
	assert.Equal(t, MonitorConfig{
		Enabled:    true,
		Interval:   time.Second,
		StatusFile: "./logs/status.txt",
	}, GetMonitorConfig())
}

func TestTypedGetters_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"server": { "obfuscateContext": true },
		"link": { "retryInterval": "0s", "appName": "Other" },
		"telemetry": { "pollInterval": "50ms", "scale": 0.5, "regionName": "Custom" },
		"influx": { "enabled": true, "bucket": "b", "token": "t" },
		"feed": { "enabled": true, "url": "ws://feed:1/x", "secret": "s3cret" },
		"monitor": { "enabled": false, "interval": "10s", "statusFile": "/tmp/status" }
	}`)
	require.NoError(t, Load(dir))

	assert.True(t, GetServerConfig().ObfuscateContext)
	assert.Equal(t, time.Duration(0), GetLinkConfig().RetryInterval)
	assert.Equal(t, "Other", GetLinkConfig().AppName)
	assert.Equal(t, TelemetryConfig{RegionName: "Custom", PollInterval: 50 * time.Millisecond, Scale: 0.5}, GetTelemetryConfig())

	ic := GetInfluxConfig()
	assert.True(t, ic.Enabled)
	assert.Equal(t, "b", ic.Bucket)
	assert.Equal(t, "t", ic.Token)

	assert.Equal(t, FeedConfig{Enabled: true, URL: "ws://feed:1/x", Secret: "s3cret"}, GetFeedConfig())
	assert.Equal(t, MonitorConfig{Interval: 10 * time.Second, StatusFile: "/tmp/status"}, GetMonitorConfig())
}
