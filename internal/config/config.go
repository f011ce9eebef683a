package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the adapter reads.
const EnvPrefix = "MIPSDAP"

// Config holds the adapter configuration.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Autorun AutorunConfig `mapstructure:"autorun"`
	Log     LogConfig     `mapstructure:"log"`
	Server  ServerConfig  `mapstructure:"server"`
	Watch   WatchConfig   `mapstructure:"watch"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// EngineConfig selects the engine process.
type EngineConfig struct {
	Command        string        `mapstructure:"command"`
	Args           []string      `mapstructure:"args"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AutorunConfig tunes the autorun loop.
type AutorunConfig struct {
	BatchSize int           `mapstructure:"batch_size"`
	IdleDelay time.Duration `mapstructure:"idle_delay"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ServerConfig configures the listen modes. Both addresses empty means one
// session over stdin and stdout.
type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	WSListen string `mapstructure:"ws_listen"`
	WSPath   string `mapstructure:"ws_path"`
}

// WatchConfig configures the source change warning.
type WatchConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			RequestTimeout: 10 * time.Second,
		},
		Autorun: AutorunConfig{
			BatchSize: 300,
			IdleDelay: 50 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Server: ServerConfig{
			WSPath: "/dap",
		},
		Watch: WatchConfig{
			Enabled: true,
		},
	}
}

// Load builds the configuration from defaults, the config file and the
// environment. path names the config file explicitly; when empty the
// default locations are searched.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file, settings, err := findConfig(path)
	if err != nil {
		return nil, err
	}
	if settings != nil {
		if err := v.MergeConfigMap(settings); err != nil {
			return nil, fmt.Errorf("merging %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if settings != nil {
		cfg.File = file
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("engine.command", cfg.Engine.Command)
	v.SetDefault("engine.args", cfg.Engine.Args)
	v.SetDefault("engine.request_timeout", cfg.Engine.RequestTimeout)
	v.SetDefault("autorun.batch_size", cfg.Autorun.BatchSize)
	v.SetDefault("autorun.idle_delay", cfg.Autorun.IdleDelay)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.output", cfg.Log.Output)
	v.SetDefault("server.listen", cfg.Server.Listen)
	v.SetDefault("server.ws_listen", cfg.Server.WSListen)
	v.SetDefault("server.ws_path", cfg.Server.WSPath)
	v.SetDefault("watch.enabled", cfg.Watch.Enabled)
}

// findConfig returns the first config file found and its settings.
func findConfig(path string) (string, map[string]any, error) {
	if path != "" {
		settings, err := readTOML(path)
		if err != nil {
			return "", nil, err
		}
		if settings == nil {
			if _, statErr := os.Stat(path); statErr != nil {
				return "", nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			settings = map[string]any{}
		}
		return path, settings, nil
	}

	for _, candidate := range SearchPaths() {
		settings, err := readTOML(candidate)
		if err != nil {
			return "", nil, err
		}
		if settings != nil {
			return candidate, settings, nil
		}
	}
	return "", nil, nil
}

// SearchPaths returns the default config file locations in search order.
func SearchPaths() []string {
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "mipsdap", "config.toml"))
	}
	return append(paths, "mipsdap.toml")
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if c.Autorun.BatchSize <= 0 {
		return fmt.Errorf("%w: autorun.batch_size must be positive, got %d", ErrInvalidValue, c.Autorun.BatchSize)
	}
	if c.Autorun.IdleDelay <= 0 {
		return fmt.Errorf("%w: autorun.idle_delay must be positive, got %s", ErrInvalidValue, c.Autorun.IdleDelay)
	}
	if c.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("%w: engine.request_timeout must be positive, got %s", ErrInvalidValue, c.Engine.RequestTimeout)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log.format must be json or console, got %q", ErrInvalidValue, c.Log.Format)
	}
	if c.Server.WSListen != "" && !strings.HasPrefix(c.Server.WSPath, "/") {
		return fmt.Errorf("%w: server.ws_path must start with /, got %q", ErrInvalidValue, c.Server.WSPath)
	}
	return nil
}
