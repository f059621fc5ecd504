package convindex

import (
	"errors"

	"github.com/hyperjump/docchat/internal/snapshot"
	"github.com/hyperjump/docchat/internal/vector"
)

var (
	// ErrEmbeddingUnavailable wraps any embedder failure, including timeouts.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrMissingDocID is returned by Add and ReplaceDocument for a blank document id.
	ErrMissingDocID = errors.New("document id is required")
	// ErrInvalidLimit is returned by Search when topK is not positive.
	ErrInvalidLimit = errors.New("top_k must be positive")

	// ErrDimensionMismatch is returned when embeddings do not match the index dimension.
	ErrDimensionMismatch = vector.ErrDimensionMismatch
	// ErrCorruptSnapshot is returned when a persisted index cannot be decoded.
	ErrCorruptSnapshot = snapshot.ErrCorrupt
)
