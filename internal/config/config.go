// Package config loads runtime configuration: an optional YAML file with
// environment-variable overrides. The embedder API key and the database
// location are required; everything else has defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
)

// Environment variable names.
const (
	EnvAPIKey   = "COHERE_API_KEY"
	EnvDatabase = "VECTORDB_DB"

	envAddress       = "VECTORDB_ADDR"
	envLogLevel      = "VECTORDB_LOG_LEVEL"
	envLogFile       = "VECTORDB_LOG_FILE"
	envEmbedModel    = "VECTORDB_EMBED_MODEL"
	envEmbedHost     = "VECTORDB_EMBED_HOST"
	envMaxConcurrent = "VECTORDB_MAX_CONCURRENT"
)

// Config represents the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// ServerConfig configures the HTTP listener and scheduler.
type ServerConfig struct {
	// Address is the listen address (default: 127.0.0.1:8080).
	Address string `yaml:"address" json:"address"`

	// MaxConcurrent bounds scheduler workers across all keys.
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DatabaseConfig locates the persistence store.
type DatabaseConfig struct {
	// Path is the SQLite database file. Required (VECTORDB_DB).
	Path string `yaml:"path" json:"path"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the backend: "cohere" or "static".
	Provider string `yaml:"provider" json:"provider"`

	// APIKey authenticates against the provider. Required for the
	// cohere provider (COHERE_API_KEY); never written to config files.
	APIKey string `yaml:"-" json:"-"`

	// Host overrides the provider API base URL.
	Host string `yaml:"host" json:"host"`

	// Model is the embedding model name.
	Model string `yaml:"model" json:"model"`

	// CacheSize is the LRU embedding cache capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// IndexConfig carries default parameters for new indexes.
type IndexConfig struct {
	NClusters      int `yaml:"n_clusters" json:"n_clusters"`
	NProbe         int `yaml:"n_probe" json:"n_probe"`
	M              int `yaml:"m" json:"m"`
	EfConstruction int `yaml:"ef_construction" json:"ef_construction"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         "127.0.0.1:8080",
			MaxConcurrent:   8,
			ShutdownTimeout: 15 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  "cohere",
			Model:     "embed-english-v3.0",
			CacheSize: 1000,
		},
		Index: IndexConfig{
			NClusters:      100,
			NProbe:         10,
			M:              16,
			EfConstruction: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (if non-empty), then environment overrides, then validation.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, vecerr.New(vecerr.ErrCodeConfigInvalid,
				fmt.Sprintf("read config file %s", path), err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, vecerr.New(vecerr.ErrCodeConfigInvalid,
				fmt.Sprintf("parse config file %s", path), err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv(envAddress); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(envLogFile); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv(envEmbedModel); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv(envEmbedHost); v != "" {
		cfg.Embedding.Host = v
	}
	if v := os.Getenv(envMaxConcurrent); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.Server.MaxConcurrent = parsed
		}
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return vecerr.New(vecerr.ErrCodeConfigMissing,
			fmt.Sprintf("database path is required (set %s)", EnvDatabase), nil)
	}
	if !filepath.IsAbs(c.Database.Path) {
		abs, err := filepath.Abs(c.Database.Path)
		if err != nil {
			return vecerr.New(vecerr.ErrCodeConfigInvalid, "resolve database path", err)
		}
		c.Database.Path = abs
	}

	switch c.Embedding.Provider {
	case "cohere":
		if c.Embedding.APIKey == "" {
			return vecerr.New(vecerr.ErrCodeConfigMissing,
				fmt.Sprintf("embedder api key is required (set %s)", EnvAPIKey), nil)
		}
	case "static":
		// No credentials needed; used for tests and offline runs.
	default:
		return vecerr.New(vecerr.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown embedding provider: %q", c.Embedding.Provider), nil)
	}

	if c.Server.Address == "" {
		return vecerr.New(vecerr.ErrCodeConfigInvalid, "server address must not be empty", nil)
	}
	if c.Server.MaxConcurrent <= 0 {
		return vecerr.New(vecerr.ErrCodeConfigInvalid, "max_concurrent must be positive", nil)
	}
	if c.Index.NClusters <= 0 || c.Index.NProbe <= 0 || c.Index.M <= 0 || c.Index.EfConstruction <= 0 {
		return vecerr.New(vecerr.ErrCodeConfigInvalid, "index parameters must be positive", nil)
	}
	return nil
}
