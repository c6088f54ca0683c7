// Package config loads settings from defaults, an optional JSON file and
// bound CLI flags.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "linkbridge.cfg.json"

// ServerConfig holds socket listener settings.
type ServerConfig struct {
	Host             string
	Port             int
	ObfuscateContext bool
}

// LinkConfig holds positional-audio link registration settings.
type LinkConfig struct {
	AppName       string
	Description   string
	RetryInterval time.Duration
}

// TelemetryConfig holds shared memory polling settings.
type TelemetryConfig struct {
	RegionName   string
	PollInterval time.Duration
	Scale        float32
}

// InfluxConfig holds link statistics sink settings.
type InfluxConfig struct {
	Enabled    bool
	Protocol   string
	Host       string
	Port       string
	Token      string
	Org        string
	Bucket     string
	BackupPath string
}

// FeedConfig holds the outward event feed settings.
type FeedConfig struct {
	Enabled bool
	URL     string
	Secret  string
}

// MonitorConfig holds status monitor settings.
type MonitorConfig struct {
	Enabled    bool
	Interval   time.Duration
	StatusFile string
}

// SetDefaults registers every default value.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("method", "")

	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 46323)
	viper.SetDefault("server.obfuscateContext", false)

	viper.SetDefault("link.appName", "TM-Proximity-Chat")
	viper.SetDefault("link.description", "Bridge to TM2020 plugin for proximity chat")
	viper.SetDefault("link.retryInterval", "5s")

	viper.SetDefault("telemetry.regionName", "ManiaPlanet_Telemetry")
	viper.SetDefault("telemetry.pollInterval", "10ms")
	viper.SetDefault("telemetry.scale", 1.0/32.0)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "linkbridge")
	viper.SetDefault("influx.bucket", "link_performance")
	viper.SetDefault("influx.backupPath", "./logs/influx_backup.log.gzip")

	viper.SetDefault("feed.enabled", false)
	viper.SetDefault("feed.url", "ws://localhost:5000/feed")
	viper.SetDefault("feed.secret", "")

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "1s")
	viper.SetDefault("monitor.statusFile", "./logs/status.txt")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
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

// GetServerConfig returns the socket listener settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Host:             viper.GetString("server.host"),
		Port:             viper.GetInt("server.port"),
		ObfuscateContext: viper.GetBool("server.obfuscateContext"),
	}
}

// GetLinkConfig returns the link registration settings.
func GetLinkConfig() LinkConfig {
	return LinkConfig{
		AppName:       viper.GetString("link.appName"),
		Description:   viper.GetString("link.description"),
		RetryInterval: viper.GetDuration("link.retryInterval"),
	}
}

// GetTelemetryConfig returns the polling settings.
func GetTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		RegionName:   viper.GetString("telemetry.regionName"),
		PollInterval: viper.GetDuration("telemetry.pollInterval"),
		Scale:        float32(viper.GetFloat64("telemetry.scale")),
	}
}

// GetInfluxConfig returns the statistics sink settings.
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

// GetFeedConfig returns the event feed settings.
func GetFeedConfig() FeedConfig {
	return FeedConfig{
		Enabled: viper.GetBool("feed.enabled"),
		URL:     viper.GetString("feed.url"),
		Secret:  viper.GetString("feed.secret"),
	}
}

// GetMonitorConfig returns the status monitor settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}
