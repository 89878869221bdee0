package x_log

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("FileNotFound", func(t *testing.T) {
		cfg, err := LoadConfig("./non_existent_config.json")
		assert.NoError(t, err)
		assert.Equal(t, defaultConfig, *cfg)
	})

	t.Run("ValidConfig", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "xlog.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"Level": "debug",
			"LogDir": "out",
			"ToConsole": false,
			"ToFile": true,
			"Style": "light",
			"MaxSize": 20
		}`), 0o644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Level)
		assert.Equal(t, "out", cfg.LogDir)
		assert.False(t, cfg.ToConsole)
		assert.Equal(t, 20, cfg.MaxSize)
		// unset numeric fields fall back to defaults
		assert.Equal(t, defaultConfig.MaxBackups, cfg.MaxBackups)
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"Level": "debug"`), 0o644))
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}

func TestSetupWritesServiceFile(t *testing.T) {
	dir := t.TempDir()
	logger := Setup("unit_test_service", &Config{
		Level:     "debug",
		LogDir:    dir,
		ToConsole: false,
		ToFile:    true,
	})

	logger.Info().Str("subject", "manager.status").Msg("hello")

	data, err := os.ReadFile(filepath.Join(dir, "unit_test_service.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "unit_test_service")
}

func TestGlobalShortcuts(t *testing.T) {
	prev := L()
	defer SetGlobal(prev)

	var buf bytes.Buffer
	SetGlobal(zerolog.New(&buf).Level(zerolog.DebugLevel))

	Debug().Msg("d")
	Info().Msg("i")
	Warn().Msg("w")
	Error().Msg("e")

	out := buf.String()
	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.Contains(t, out, `"level":"`+level+`"`)
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
}
