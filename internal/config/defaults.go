package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendDisk
	}
	if cfg.Storage.SnapshotDir == "" {
		cfg.Storage.SnapshotDir = "/usr/local/var/docchat/data/snapshots"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/docchat/data/db/indexes.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderHash
	}
	if cfg.Embedding.Endpoint == "" && cfg.Embedding.Provider == ProviderOpenAI {
		cfg.Embedding.Endpoint = "https://api.openai.com/v1"
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case ProviderOpenAI:
			cfg.Embedding.Model = "text-embedding-3-small"
		case ProviderGemini:
			cfg.Embedding.Model = "gemini-embedding-001"
		}
	}
	if cfg.Embedding.Dimensions == 0 {
		switch cfg.Embedding.Provider {
		case ProviderOpenAI:
			cfg.Embedding.Dimensions = 1536
		case ProviderGemini:
			cfg.Embedding.Dimensions = 3072
		default:
			cfg.Embedding.Dimensions = 384
		}
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Index.CacheSize == 0 {
		cfg.Index.CacheSize = 256
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 8
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Search.ChunkSize == 0 {
		cfg.Search.ChunkSize = 80
	}
	if cfg.Search.ChunkOverlap == 0 {
		cfg.Search.ChunkOverlap = 10
	}
	if cfg.Answer.MinConfidence == 0 {
		cfg.Answer.MinConfidence = 0.2
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".xlsx"}
	}
}
