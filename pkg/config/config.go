// Package config loads engine configuration from file and environment
// through viper and builds the ambient logger.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/engramdb/engram/pkg/community"
	"github.com/engramdb/engram/pkg/embedder"
	"github.com/engramdb/engram/pkg/reasoner"
	"github.com/engramdb/engram/pkg/search"
)

// Config holds all configuration for the engine.
type Config struct {
	Log LogConfig `mapstructure:"log"`

	// Reasoner configures the LLM collaborator behind extraction,
	// deduplication, temporal inference, labeling, and cross-encoding.
	Reasoner ReasonerConfig `mapstructure:"reasoner"`

	Embedding EmbeddingConfig `mapstructure:"embedding"`

	Community community.Config `mapstructure:"community"`

	Search search.Config `mapstructure:"search"`

	Ingestion IngestionConfig `mapstructure:"ingestion"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// ReasonerConfig groups the collaborator transport with its resilience
// wrappers.
type ReasonerConfig struct {
	OpenAI  reasoner.OpenAIConfig  `mapstructure:"openai"`
	Retry   reasoner.RetryConfig   `mapstructure:"retry"`
	Breaker reasoner.BreakerConfig `mapstructure:"breaker"`
}

// EmbeddingConfig groups the embedding client with its cache bounds.
type EmbeddingConfig struct {
	embedder.Config `mapstructure:",squash"`

	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// IngestionConfig tunes bulk episode ingestion.
type IngestionConfig struct {
	// ChunkSize bounds how many episodes one bulk batch processes
	// before yielding.
	ChunkSize int `mapstructure:"chunk_size"`
	// ContextEpisodes is how many recent turns accompany extraction as
	// disambiguation context.
	ContextEpisodes int `mapstructure:"context_episodes"`
}

// Load reads configuration from the given file (optional), environment
// variables prefixed ENGRAM_, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ENGRAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if cfg.Reasoner.OpenAI.APIKey == "" {
			cfg.Reasoner.OpenAI.APIKey = key
		}
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = key
		}
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("reasoner.openai.model", "gpt-4o-mini")
	v.SetDefault("reasoner.openai.temperature", 0.0)
	v.SetDefault("reasoner.retry.max_retries", 3)
	v.SetDefault("reasoner.retry.initial_delay", "1s")
	v.SetDefault("reasoner.retry.max_delay", "30s")
	v.SetDefault("reasoner.retry.backoff_multiplier", 2.0)

	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.batch_size", 100)
	v.SetDefault("embedding.cache_size", 1000)
	v.SetDefault("embedding.cache_ttl", "1h")

	v.SetDefault("community.max_iterations", community.DefaultMaxIterations)
	v.SetDefault("community.convergence_threshold", community.DefaultConvergenceThreshold)
	v.SetDefault("community.min_size", community.DefaultMinSize)
	v.SetDefault("community.min_similarity", community.DefaultMinSimilarity)

	v.SetDefault("search.fusion", string(search.FusionWeighted))
	v.SetDefault("search.rank_constant", search.DefaultRankConstant)
	v.SetDefault("search.max_path_length", search.DefaultMaxPathLength)
	v.SetDefault("search.recency_half_life", "168h")
	v.SetDefault("search.limit", search.DefaultLimit)

	v.SetDefault("ingestion.chunk_size", 10)
	v.SetDefault("ingestion.context_episodes", 3)
}

// NewLogger builds a slog logger per the log configuration.
func NewLogger(cfg LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
