package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config directory at an empty temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.Autorun.BatchSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Autorun.IdleDelay)
	assert.Equal(t, 10*time.Second, cfg.Engine.RequestTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "stderr", cfg.Log.Output)
	assert.Equal(t, "/dap", cfg.Server.WSPath)
	assert.True(t, cfg.Watch.Enabled)
	assert.Empty(t, cfg.File)
}

func TestLoadExplicitFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.toml")
	writeFile(t, path, `
[engine]
command = "mips-engine"
args = ["--serve", "--quiet"]
request_timeout = "2s"

[autorun]
batch_size = 50
idle_delay = "10ms"

[log]
level = "debug"
format = "console"

[server]
listen = "127.0.0.1:4711"

[watch]
enabled = false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "mips-engine", cfg.Engine.Command)
	assert.Equal(t, []string{"--serve", "--quiet"}, cfg.Engine.Args)
	assert.Equal(t, 2*time.Second, cfg.Engine.RequestTimeout)
	assert.Equal(t, 50, cfg.Autorun.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.Autorun.IdleDelay)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "stderr", cfg.Log.Output)
	assert.Equal(t, "127.0.0.1:4711", cfg.Server.Listen)
	assert.False(t, cfg.Watch.Enabled)
}

func TestLoadUserConfigDir(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "mipsdap", "config.toml"), "[autorun]\nbatch_size = 7\n")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Autorun.BatchSize)
	assert.Equal(t, filepath.Join(dir, "mipsdap", "config.toml"), cfg.File)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "mipsdap.toml")
	writeFile(t, path, "[autorun]\nbatch_size = 50\n[log]\nlevel = \"warn\"\n")

	t.Setenv("MIPSDAP_AUTORUN_BATCH_SIZE", "20")
	t.Setenv("MIPSDAP_ENGINE_COMMAND", "/opt/mips/engine")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Autorun.BatchSize)
	assert.Equal(t, "/opt/mips/engine", cfg.Engine.Command)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLoadParseError(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	writeFile(t, path, "[autorun]\nbatch_size = = 3\n")

	_, err := Load(path)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, path, perr.Path)
	assert.Equal(t, 2, perr.Line)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"zero batch":      func(c *Config) { c.Autorun.BatchSize = 0 },
		"zero idle delay": func(c *Config) { c.Autorun.IdleDelay = 0 },
		"zero timeout":    func(c *Config) { c.Engine.RequestTimeout = 0 },
		"bad format":      func(c *Config) { c.Log.Format = "xml" },
		"relative ws path": func(c *Config) {
			c.Server.WSListen = ":8080"
			c.Server.WSPath = "dap"
		},
	}

	require.NoError(t, Default().Validate())
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidValue)
		})
	}
}

func TestParseErrorMessage(t *testing.T) {
	assert.Equal(t, "parse error in a.toml at line 2, column 5: boom",
		(&ParseError{Path: "a.toml", Line: 2, Column: 5, Message: "boom"}).Error())
	assert.Equal(t, "parse error in a.toml at line 2: boom",
		(&ParseError{Path: "a.toml", Line: 2, Message: "boom"}).Error())
	assert.Equal(t, "parse error in a.toml: boom",
		(&ParseError{Path: "a.toml", Message: "boom"}).Error())
}
