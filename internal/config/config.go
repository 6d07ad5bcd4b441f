// Package config loads process configuration from .env plus the
// environment, following the teacher's godotenv-then-os.Getenv pattern
// (see internal/llm.NewTier's prefix-with-fallback resolution in the
// original agentic-shell).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully-resolved process configuration for fabricd.
type Config struct {
	AnthropicAPIKey string
	BridgeAPIKey    string
	BridgeGRPCPort  int
	BridgeGRPCURL   string

	VaultPath     string
	VaultPassword string
	SkillsDir     string
	CacheDir      string
	WorkerMaxCount int
	WorkerRootConfirmationToken string

	HealthCheckInterval time.Duration
	MaxIdleTime         time.Duration
	DefaultTaskTimeout  time.Duration

	LogDevelopment bool
}

// Load reads a .env file if present (missing is not an error, matching
// godotenv.Load's typical CLI usage) and layers environment variables with
// defaults on top.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		BridgeAPIKey:    os.Getenv("BRIDGE_API_KEY"),
		BridgeGRPCPort:  getInt("BRIDGE_GRPC_PORT", 9998),
		BridgeGRPCURL:   getString("BRIDGE_GRPC_URL", "http://localhost:9998"),

		VaultPath:      getString("VAULT_PATH", "vault.json"),
		VaultPassword:  os.Getenv("VAULT_PASSWORD"),
		SkillsDir:      getString("SKILLS_DIR", "skills"),
		CacheDir:       getString("CACHE_DIR", "cache"),
		WorkerMaxCount: getInt("WORKER_MAX", 5),
		WorkerRootConfirmationToken: os.Getenv("WORKER_ROOT_TOKEN"),

		HealthCheckInterval: getDuration("HEALTH_CHECK_INTERVAL_MS", 30*time.Second),
		MaxIdleTime:         getDuration("MAX_IDLE_TIME_MS", 600*time.Second),
		DefaultTaskTimeout:  getDuration("DEFAULT_TASK_TIMEOUT_MS", 300*time.Second),

		LogDevelopment: os.Getenv("LOG_DEV") == "true",
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getDuration reads key as milliseconds; the fallback is passed as a
// time.Duration directly so callers can write the intended unit clearly.
func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}
