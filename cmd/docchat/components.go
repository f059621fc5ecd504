package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/docchat/internal/answer"
	"github.com/hyperjump/docchat/internal/chat"
	"github.com/hyperjump/docchat/internal/config"
	"github.com/hyperjump/docchat/internal/convindex"
	"github.com/hyperjump/docchat/internal/embedding"
	"github.com/hyperjump/docchat/internal/extract"
	"github.com/hyperjump/docchat/internal/indexer"
	"github.com/hyperjump/docchat/internal/snapshot"
)

// Components holds the long-lived services shared by every command.
type Components struct {
	Repository snapshot.Repository
	Embedder   embedding.Embedder
	Indexes    *convindex.Manager
	Chat       *chat.Service
	Indexer    *indexer.Indexer
}

// Close releases the embedder and the snapshot repository.
func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Repository != nil {
		_ = c.Repository.Close()
	}
}

func openRepository(cfg *config.Config, logger *zap.Logger) (snapshot.Repository, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		return snapshot.NewSQLiteRepository(cfg.Storage.DatabasePath)
	default:
		return snapshot.NewDiskRepository(cfg.Storage.SnapshotDir, snapshot.WithLogger(logger))
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	repo, err := openRepository(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	embedder, err := embedding.New(ctx, cfg.Embedding, logger)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	indexes := convindex.NewManager(repo, embedder,
		convindex.WithLogger(logger),
		convindex.WithEmbedTimeout(cfg.Embedding.Timeout),
		convindex.WithCacheSize(cfg.Index.CacheSize),
	)
	chatSvc := chat.NewService(indexes, answer.NewExtractive(cfg.Answer.MinConfidence),
		chat.WithLogger(logger),
		chat.WithTopK(cfg.Search.DefaultTopK),
	)
	idx := indexer.NewIndexer(indexes, cfg.Search, extract.NewExtractor(), indexer.WithLogger(logger))

	return &Components{
		Repository: repo,
		Embedder:   embedder,
		Indexes:    indexes,
		Chat:       chatSvc,
		Indexer:    idx,
	}, nil
}
