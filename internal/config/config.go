package config

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Inference endpoint (OpenAI-compatible, streaming)
	InferenceURL    string
	InferenceAPIKey string

	// Render engine (image generation workflows)
	RenderURL string

	// Model catalog
	CatalogPath string

	// Asset storage
	AssetDir string

	// HTTP server
	ListenAddr string

	// Image job polling
	RenderPollInterval time.Duration
	RenderPollBudget   time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
// InferenceURL, InferenceAPIKey and RenderURL have no defaults on purpose:
// their absence is surfaced per-turn/per-job, never process-fatal.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "glimmer"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "core"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		InferenceURL:    os.Getenv("GLIMMER_INFERENCE_URL"),
		InferenceAPIKey: os.Getenv("GLIMMER_INFERENCE_API_KEY"),
		RenderURL:       os.Getenv("GLIMMER_RENDER_URL"),

		CatalogPath: getEnv("GLIMMER_CATALOG", "models.yaml"),
		AssetDir:    getEnv("GLIMMER_ASSET_DIR", "assets"),
		ListenAddr:  getEnv("GLIMMER_LISTEN_ADDR", ":8484"),

		RenderPollInterval: getDuration("GLIMMER_RENDER_POLL_INTERVAL", 2*time.Second),
		RenderPollBudget:   getDuration("GLIMMER_RENDER_POLL_BUDGET", 5*time.Minute),

		LogFile:  getEnv("GLIMMER_LOG_FILE", "/tmp/glimmer.log"),
		LogLevel: parseLogLevel(getEnv("GLIMMER_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
