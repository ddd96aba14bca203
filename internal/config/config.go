// Package config provides configuration management for Bri's memory engine.
// It loads settings from environment variables with the BRI_ prefix, with an
// optional bri.yaml file overlaying the defaults before the environment is
// applied. Environment variables always win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for the memory engine and its collaborators.
type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Engine      EngineConfig      `yaml:"engine"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Engine is the backend type: postgres or sqlite (default: postgres).
	Engine string `yaml:"engine"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`
}

// OpenAIConfig configures the embedding and chat-completion collaborators.
type OpenAIConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	ChatModel      string        `yaml:"chat_model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	Timeout        time.Duration `yaml:"timeout"`
}

// EngineConfig tunes the memory engine.
type EngineConfig struct {
	BotName            string `yaml:"bot_name"`
	RetrieveLimit      int    `yaml:"retrieve_limit"`
	TaskQueueSize      int    `yaml:"task_queue_size"`
	TaskWorkers        int    `yaml:"task_workers"`
	EmbeddingCacheSize int    `yaml:"embedding_cache_size"`
}

// MaintenanceConfig tunes the periodic sweep scheduler.
type MaintenanceConfig struct {
	// DecayInterval is how often the decay and graph-build sweep runs
	// (default: 24h).
	DecayInterval time.Duration `yaml:"decay_interval"`

	// TemporalInterval is how often the temporal reanalysis sweep runs
	// (default: 12h).
	TemporalInterval time.Duration `yaml:"temporal_interval"`

	// ActivityWindow bounds sweeps to scopes active within the trailing
	// window (default: 168h).
	ActivityWindow time.Duration `yaml:"activity_window"`

	// ScopesPerSecond rate-limits scope iteration (default: 2).
	ScopesPerSecond float64 `yaml:"scopes_per_second"`
}

// LoadConfig loads configuration from bri.yaml (when present) and the
// environment. All environment variables use the BRI_ prefix.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	path := getEnv("BRI_CONFIG_FILE", "bri.yaml")
	if err := overlayFile(cfg, path); err != nil {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

// Validate checks the settings that must be present at startup. Collaborator
// credentials are a fatal configuration failure, not a per-request one.
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: BRI_POSTGRES_DSN is required for the postgres backend")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("config: BRI_SQLITE_PATH is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}

	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("config: BRI_OPENAI_API_KEY is required")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:     "postgres",
			SQLitePath: "./data/bri.db",
		},
		OpenAI: OpenAIConfig{
			BaseURL:        "https://api.openai.com",
			ChatModel:      "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			Timeout:        5 * time.Second,
		},
		Engine: EngineConfig{
			BotName:            "Bri",
			RetrieveLimit:      5,
			TaskQueueSize:      256,
			TaskWorkers:        2,
			EmbeddingCacheSize: 4096,
		},
		Maintenance: MaintenanceConfig{
			DecayInterval:    24 * time.Hour,
			TemporalInterval: 12 * time.Hour,
			ActivityWindow:   7 * 24 * time.Hour,
			ScopesPerSecond:  2,
		},
	}
}

// overlayFile merges bri.yaml onto the defaults. A missing file is fine; a
// malformed one is a startup error.
func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Storage.Engine = getEnv("BRI_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.PostgresDSN = getEnv("BRI_POSTGRES_DSN", cfg.Storage.PostgresDSN)
	cfg.Storage.SQLitePath = getEnv("BRI_SQLITE_PATH", cfg.Storage.SQLitePath)

	cfg.OpenAI.APIKey = getEnv("BRI_OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.BaseURL = getEnv("BRI_OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.OpenAI.ChatModel = getEnv("BRI_CHAT_MODEL", cfg.OpenAI.ChatModel)
	cfg.OpenAI.EmbeddingModel = getEnv("BRI_EMBEDDING_MODEL", cfg.OpenAI.EmbeddingModel)
	cfg.OpenAI.Timeout = getEnvDuration("BRI_OPENAI_TIMEOUT", cfg.OpenAI.Timeout)

	cfg.Engine.BotName = getEnv("BRI_BOT_NAME", cfg.Engine.BotName)
	cfg.Engine.RetrieveLimit = getEnvInt("BRI_RETRIEVE_LIMIT", cfg.Engine.RetrieveLimit)
	cfg.Engine.TaskQueueSize = getEnvInt("BRI_TASK_QUEUE_SIZE", cfg.Engine.TaskQueueSize)
	cfg.Engine.TaskWorkers = getEnvInt("BRI_TASK_WORKERS", cfg.Engine.TaskWorkers)
	cfg.Engine.EmbeddingCacheSize = getEnvInt("BRI_EMBEDDING_CACHE_SIZE", cfg.Engine.EmbeddingCacheSize)

	cfg.Maintenance.DecayInterval = getEnvDuration("BRI_DECAY_INTERVAL", cfg.Maintenance.DecayInterval)
	cfg.Maintenance.TemporalInterval = getEnvDuration("BRI_TEMPORAL_INTERVAL", cfg.Maintenance.TemporalInterval)
	cfg.Maintenance.ActivityWindow = getEnvDuration("BRI_ACTIVITY_WINDOW", cfg.Maintenance.ActivityWindow)
	cfg.Maintenance.ScopesPerSecond = getEnvFloat("BRI_SCOPES_PER_SECOND", cfg.Maintenance.ScopesPerSecond)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
