package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is resolved in three layers: compiled defaults, then an optional
// YAML file (ENGRAM_CONFIG_FILE), then environment variables on top.
type Config struct {
	Port      int    `yaml:"port"`
	DBPath    string `yaml:"dbPath"`
	LogLevel  string `yaml:"logLevel"`
	APIToken  string `yaml:"apiToken"`
	Embedding Embedding
	Cache     Cache
	Ranking   Ranking
	Temporal  Temporal
	Batch     Batch
}

type Embedding struct {
	OllamaBaseURL string `yaml:"ollamaBaseUrl"`
	Model         string `yaml:"model"`
	Dimension     int    `yaml:"dimension"`
}

type Cache struct {
	MaxSize           int  `yaml:"maxSize"`
	ImportantSize     int  `yaml:"importantSize"`
	DefaultTTLMs      int  `yaml:"defaultTtlMs"`
	EnableCleanup     bool `yaml:"enableCleanup"`
	CleanupIntervalMs int  `yaml:"cleanupIntervalMs"`
}

type Ranking struct {
	MinRelevanceScore float64 `yaml:"minRelevanceScore"`
	MaxResults        int     `yaml:"maxResults"`
	IncludeReasons    bool    `yaml:"includeReasons"`
	RecencyBoost      bool    `yaml:"recencyBoost"`
	FeedbackBoost     bool    `yaml:"feedbackBoost"`
}

type Temporal struct {
	UpdateIntervalMs int `yaml:"updateIntervalMs"`
}

type Batch struct {
	DefaultSource      string `yaml:"defaultSource"`
	DefaultContext     string `yaml:"defaultContext"`
	DefaultImportance  int    `yaml:"defaultImportance"`
	GenerateEmbeddings bool   `yaml:"generateEmbeddings"`
}

func defaults() *Config {
	return &Config{
		Port:     8741,
		DBPath:   "/data/engram.db",
		LogLevel: "info",
		Embedding: Embedding{
			OllamaBaseURL: "http://localhost:11434",
			Model:         "nomic-embed-text",
			Dimension:     768,
		},
		Cache: Cache{
			MaxSize:           100,
			ImportantSize:     50,
			DefaultTTLMs:      int(5 * time.Minute / time.Millisecond),
			EnableCleanup:     false,
			CleanupIntervalMs: int(time.Minute / time.Millisecond),
		},
		Ranking: Ranking{
			MinRelevanceScore: 0.1,
			MaxResults:        10,
			IncludeReasons:    true,
			RecencyBoost:      true,
			FeedbackBoost:     true,
		},
		Temporal: Temporal{
			UpdateIntervalMs: int(15 * time.Minute / time.Millisecond),
		},
		Batch: Batch{
			DefaultSource:      "conversation",
			DefaultContext:     "general",
			DefaultImportance:  5,
			GenerateEmbeddings: true,
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("ENGRAM_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = envInt("PORT", c.Port)
	c.DBPath = envStr("ENGRAM_DB_PATH", c.DBPath)
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.APIToken = envStr("ENGRAM_API_TOKEN", c.APIToken)

	c.Embedding.OllamaBaseURL = envStr("OLLAMA_BASE_URL", c.Embedding.OllamaBaseURL)
	c.Embedding.Model = envStr("EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.Dimension = envInt("EMBEDDING_DIM", c.Embedding.Dimension)

	c.Cache.MaxSize = envInt("CACHE_MAX_SIZE", c.Cache.MaxSize)
	c.Cache.ImportantSize = envInt("CACHE_IMPORTANT_SIZE", c.Cache.ImportantSize)
	c.Cache.DefaultTTLMs = envInt("CACHE_DEFAULT_TTL_MS", c.Cache.DefaultTTLMs)
	c.Cache.EnableCleanup = envBool("CACHE_ENABLE_CLEANUP", c.Cache.EnableCleanup)
	c.Cache.CleanupIntervalMs = envInt("CACHE_CLEANUP_INTERVAL_MS", c.Cache.CleanupIntervalMs)

	c.Ranking.MinRelevanceScore = envFloat("RANKING_MIN_SCORE", c.Ranking.MinRelevanceScore)
	c.Ranking.MaxResults = envInt("RANKING_MAX_RESULTS", c.Ranking.MaxResults)
	c.Ranking.IncludeReasons = envBool("RANKING_INCLUDE_REASONS", c.Ranking.IncludeReasons)
	c.Ranking.RecencyBoost = envBool("RANKING_RECENCY_BOOST", c.Ranking.RecencyBoost)
	c.Ranking.FeedbackBoost = envBool("RANKING_FEEDBACK_BOOST", c.Ranking.FeedbackBoost)

	c.Temporal.UpdateIntervalMs = envInt("TEMPORAL_UPDATE_INTERVAL_MS", c.Temporal.UpdateIntervalMs)

	c.Batch.DefaultSource = envStr("BATCH_DEFAULT_SOURCE", c.Batch.DefaultSource)
	c.Batch.DefaultContext = envStr("BATCH_DEFAULT_CONTEXT", c.Batch.DefaultContext)
	c.Batch.DefaultImportance = envInt("BATCH_DEFAULT_IMPORTANCE", c.Batch.DefaultImportance)
	c.Batch.GenerateEmbeddings = envBool("BATCH_GENERATE_EMBEDDINGS", c.Batch.GenerateEmbeddings)
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("ENGRAM_DB_PATH must not be empty")
	}
	if c.Embedding.OllamaBaseURL == "" {
		return fmt.Errorf("OLLAMA_BASE_URL must not be empty")
	}
	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Cache.MaxSize < 1 || c.Cache.ImportantSize < 1 {
		return fmt.Errorf("cache sizes must be positive, got %d/%d", c.Cache.MaxSize, c.Cache.ImportantSize)
	}
	if c.Ranking.MinRelevanceScore < 0 || c.Ranking.MinRelevanceScore > 1 {
		return fmt.Errorf("RANKING_MIN_SCORE must be in [0,1], got %f", c.Ranking.MinRelevanceScore)
	}
	if c.Batch.DefaultImportance < 1 || c.Batch.DefaultImportance > 10 {
		return fmt.Errorf("BATCH_DEFAULT_IMPORTANCE must be in [1,10], got %d", c.Batch.DefaultImportance)
	}
	return nil
}

// CacheTTL returns the configured default TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.DefaultTTLMs) * time.Millisecond
}

func (c *Config) CacheCleanupInterval() time.Duration {
	return time.Duration(c.Cache.CleanupIntervalMs) * time.Millisecond
}

func (c *Config) TemporalUpdateInterval() time.Duration {
	return time.Duration(c.Temporal.UpdateIntervalMs) * time.Millisecond
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}
