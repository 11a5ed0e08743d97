package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config holds every tunable consumed by the CLI and the MCP server
type Config struct {
	// AdbPath is the adb binary to invoke; resolved from PATH when bare
	AdbPath string `mapstructure:"adb_path"`
	// ExecTimeoutMs is the default timeout for one-shot adb invocations
	ExecTimeoutMs int `mapstructure:"exec_timeout_ms"`
	// DataDir holds the session database, persistent logs and exports
	DataDir string `mapstructure:"data_dir"`
	// PluginsDir holds JS log-processor plugins (*.js)
	PluginsDir string `mapstructure:"plugins_dir"`

	Logcat  LogcatSettings  `mapstructure:"logcat"`
	Logging LoggingSettings `mapstructure:"logging"`
}

// LogcatSettings tune the log capture engine
type LogcatSettings struct {
	// BufferSize is the ring buffer capacity (entries)
	BufferSize int `mapstructure:"buffer_size"`
	// StartupTimeoutMs bounds the wait for first subprocess output
	StartupTimeoutMs int `mapstructure:"startup_timeout_ms"`
	// Debug echoes every captured line to the local log
	Debug bool `mapstructure:"debug"`
	// DebugTrace also echoes logcat's own buffer separators
	DebugTrace bool `mapstructure:"debug_trace"`
}

// LoggingSettings tune droidctl's own structured log
type LoggingSettings struct {
	Level string `mapstructure:"level"`
	File  bool   `mapstructure:"file"`
}

// ExecTimeout returns the default invocation timeout as a duration
func (c *Config) ExecTimeout() time.Duration {
	return time.Duration(c.ExecTimeoutMs) * time.Millisecond
}

// LogcatStartupTimeout returns the capture startup timeout as a duration
func (c *Config) LogcatStartupTimeout() time.Duration {
	return time.Duration(c.Logcat.StartupTimeoutMs) * time.Millisecond
}

// LoggerConfig translates the logging settings into a LogConfig
func (c *Config) LoggerConfig() LogConfig {
	var lc LogConfig
	if c.Logging.File {
		lc = PersistentLogConfig(c.DataDir)
	} else {
		lc = DefaultLogConfig()
	}
	if lvl, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err == nil && c.Logging.Level != "" {
		lc.Level = lvl
	}
	return lc
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".droidctl"
	}
	return filepath.Join(home, ".droidctl")
}

func setDefaults(v *viper.Viper) {
	dataDir := defaultDataDir()
	v.SetDefault("adb_path", "adb")
	v.SetDefault("exec_timeout_ms", 30000)
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("plugins_dir", filepath.Join(dataDir, "plugins"))
	v.SetDefault("logcat.buffer_size", 10000)
	v.SetDefault("logcat.startup_timeout_ms", 10000)
	v.SetDefault("logcat.debug", false)
	v.SetDefault("logcat.debug_trace", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", false)
}

// LoadConfig reads ~/.droidctl/config.yaml (if present) merged with
// DROIDCTL_* environment variables on top of the built-in defaults
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(defaultDataDir())
	v.AddConfigPath(".")

	v.SetEnvPrefix("DROIDCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
