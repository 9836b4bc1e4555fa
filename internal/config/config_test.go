package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "ws://localhost:8000/rpc", cfg.SurrealDBURL)
	assert.Equal(t, ":8484", cfg.ListenAddr)
	assert.Equal(t, 2*time.Second, cfg.RenderPollInterval)
	assert.Equal(t, 5*time.Minute, cfg.RenderPollBudget)

	// No defaults on purpose: absence surfaces per-turn/per-job.
	assert.Empty(t, cfg.InferenceURL)
	assert.Empty(t, cfg.RenderURL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GLIMMER_LISTEN_ADDR", ":9999")
	t.Setenv("GLIMMER_RENDER_POLL_INTERVAL", "250ms")
	t.Setenv("GLIMMER_LOG_LEVEL", "debug")

	cfg := Load()
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 250*time.Millisecond, cfg.RenderPollInterval)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestGetDurationIgnoresGarbage(t *testing.T) {
	t.Setenv("GLIMMER_RENDER_POLL_INTERVAL", "soon")
	cfg := Load()
	assert.Equal(t, 2*time.Second, cfg.RenderPollInterval)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("nonsense"))
}

func TestSetupLoggerWithWritersFansOut(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("turn completed", "conversation_id", "c1")

	assert.Contains(t, stderr.String(), "turn completed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &entry))
	assert.Equal(t, "turn completed", entry["msg"])
	assert.Equal(t, "c1", entry["conversation_id"])
}
