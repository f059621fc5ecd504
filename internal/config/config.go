// Package config provides configuration loading and structs for the docchat server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. DOCCHAT_EMBEDDING_API_KEY.
const EnvPrefix = "docchat"

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Answer    AnswerConfig    `yaml:"answer"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout" split_words:"true"`
}

// Storage backends.
const (
	BackendDisk   = "disk"
	BackendSQLite = "sqlite"
)

// StorageConfig selects where conversation snapshots live.
type StorageConfig struct {
	Backend      string `yaml:"backend"`
	SnapshotDir  string `yaml:"snapshot_dir" split_words:"true"`
	DatabasePath string `yaml:"database_path" split_words:"true"`
}

// Embedding providers.
const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderONNX   = "onnx"
)

// EmbeddingConfig holds embedder settings. Endpoint and APIKey apply to the
// openai provider, APIKey also to gemini, ModelPath and MaxTokens to onnx.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"`
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"api_key" split_words:"true"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	MaxTokens  int           `yaml:"max_tokens" split_words:"true"`
	ModelPath  string        `yaml:"model_path" split_words:"true"`
	CacheSize  int           `yaml:"cache_size" split_words:"true"`
	Timeout    time.Duration `yaml:"timeout"`
}

// IndexConfig holds conversation index settings.
type IndexConfig struct {
	// CacheSize is the number of loaded conversation stores kept in memory.
	CacheSize int `yaml:"cache_size" split_words:"true"`
}

// SearchConfig holds retrieval and chunking settings.
type SearchConfig struct {
	DefaultTopK  int `yaml:"default_top_k" split_words:"true"`
	MaxTopK      int `yaml:"max_top_k" split_words:"true"`
	ChunkSize    int `yaml:"chunk_size" split_words:"true"`
	ChunkOverlap int `yaml:"chunk_overlap" split_words:"true"`
}

// AnswerConfig holds answer generation settings.
type AnswerConfig struct {
	MinConfidence float64 `yaml:"min_confidence" split_words:"true"`
}

// WatchConfig holds inbox directory settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, applies DOCCHAT_* environment
// overrides, applies defaults and expands paths.
// A missing file is not an error: the result is built from environment and defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.SnapshotDir = expandPath(cfg.Storage.SnapshotDir, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendDisk, BackendSQLite:
	default:
		return fmt.Errorf("%w: storage.backend %q", ErrInvalid, c.Storage.Backend)
	}
	switch c.Embedding.Provider {
	case ProviderHash:
	case ProviderOpenAI:
		if c.Embedding.Endpoint == "" {
			return fmt.Errorf("%w: embedding.endpoint is required for openai", ErrInvalid)
		}
	case ProviderGemini:
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("%w: embedding.api_key is required for gemini", ErrInvalid)
		}
	case ProviderONNX:
		if c.Embedding.ModelPath == "" {
			return fmt.Errorf("%w: embedding.model_path is required for onnx", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: embedding.provider %q", ErrInvalid, c.Embedding.Provider)
	}
	if c.Search.DefaultTopK > c.Search.MaxTopK {
		return fmt.Errorf("%w: search.default_top_k %d exceeds max_top_k %d", ErrInvalid, c.Search.DefaultTopK, c.Search.MaxTopK)
	}
	if c.Search.ChunkOverlap >= c.Search.ChunkSize {
		return fmt.Errorf("%w: search.chunk_overlap must be smaller than chunk_size", ErrInvalid)
	}
	if c.Answer.MinConfidence < 0 || c.Answer.MinConfidence > 1 {
		return fmt.Errorf("%w: answer.min_confidence must be within [0, 1]", ErrInvalid)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
