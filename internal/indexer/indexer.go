package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/docchat/internal/config"
	"github.com/hyperjump/docchat/internal/convindex"
	"github.com/hyperjump/docchat/internal/extract"
	"github.com/hyperjump/docchat/internal/fileid"
	"github.com/hyperjump/docchat/pkg/utils"
)

// ErrExtensionNotAllowed is returned when a file's extension is filtered out.
var ErrExtensionNotAllowed = errors.New("extension not allowed")

// Indexer chunks documents and writes them into conversation indexes.
type Indexer struct {
	indexes   *convindex.Manager
	chunker   *Chunker
	extractor *extract.Extractor
	logger    *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer writing into indexes. extractor may be nil, in
// which case files are read as plain text.
func NewIndexer(indexes *convindex.Manager, cfg config.SearchConfig, extractor *extract.Extractor, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		indexes:   indexes,
		chunker:   NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		extractor: extractor,
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	return idx
}

// Chunks returns texts unchanged followed by the chunks of content.
func (idx *Indexer) Chunks(texts []string, content string) []string {
	out := append([]string(nil), texts...)
	return append(out, idx.chunker.Chunk(Preprocess(content))...)
}

// AddDocument appends texts and the chunks of content to docID in the
// conversation. It returns the number of chunks added.
func (idx *Indexer) AddDocument(ctx context.Context, conversationID, docID string, texts []string, content string) (int, error) {
	return idx.indexes.Index(conversationID).Add(ctx, docID, idx.Chunks(texts, content))
}

// IndexFile extracts the file at path and replaces docID's chunks with it. An
// empty docID means the id derived from the absolute path. If allowedExts is
// non-empty the file's extension must be in it. It returns the document id used
// and the number of chunks stored.
func (idx *Indexer) IndexFile(ctx context.Context, conversationID, docID, path string, allowedExts []string) (string, int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", 0, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return "", 0, fmt.Errorf("%w: %q", ErrExtensionNotAllowed, ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", 0, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", 0, fmt.Errorf("not a regular file: %s", absPath)
	}
	if docID == "" {
		docID = fileid.FileDocID(absPath)
	}
	text, err := idx.extractContent(absPath)
	if err != nil {
		return "", 0, fmt.Errorf("extract content: %w", err)
	}
	n, err := idx.indexes.Index(conversationID).ReplaceDocument(ctx, docID, idx.Chunks(nil, text))
	if err != nil {
		return "", 0, err
	}
	idx.logger.Debug("indexer file indexed",
		zap.String("conversation_id", conversationID),
		zap.String("path", absPath),
		zap.String("doc_id", docID),
		zap.Int("chunks", n),
	)
	return docID, n, nil
}

// IndexDirectory indexes every regular file directly inside dir whose extension
// is allowed. Files that fail are logged and skipped. It returns the number of
// files indexed.
func (idx *Indexer) IndexDirectory(ctx context.Context, conversationID, dir string, allowedExts []string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read directory: %w", err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if len(allowedExts) > 0 && !extensionAllowed(filepath.Ext(e.Name()), allowedExts) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		path := filepath.Join(dir, e.Name())
		if _, _, err := idx.IndexFile(ctx, conversationID, "", path, allowedExts); err != nil {
			idx.logger.Warn("indexer skipping file", zap.String("path", path), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

// RemoveFile drops the chunks ingested from path. It returns the number removed.
func (idx *Indexer) RemoveFile(ctx context.Context, conversationID, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	return idx.indexes.Index(conversationID).RemoveDocument(ctx, fileid.FileDocID(absPath))
}

func (idx *Indexer) extractContent(path string) (string, error) {
	if idx.extractor != nil {
		return idx.extractor.Extract(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
