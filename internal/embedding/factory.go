package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/docchat/internal/config"
	"github.com/hyperjump/docchat/pkg/utils"
)

// New builds the process-wide embedder for cfg, wrapped in an LRU cache when
// cfg.CacheSize is positive. Call Close on shutdown.
func New(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	logger = utils.OrNop(logger)

	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case config.ProviderHash, "":
		e = NewHashEmbedder(cfg.Dimensions)
	case config.ProviderOpenAI:
		e = NewAPIEmbedder(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Dimensions)
	case config.ProviderGemini:
		e, err = NewGeminiEmbedder(ctx, cfg.APIKey, cfg.Model, cfg.Dimensions)
	case config.ProviderONNX:
		e, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("embedder ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimensions", e.Dimensions()),
		zap.Int("cache_size", cfg.CacheSize),
	)
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(e, cfg.CacheSize), nil
	}
	return e, nil
}
