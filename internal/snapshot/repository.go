package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/docchat/internal/vector"
)

// ErrInvalidKey is returned for conversation ids that cannot be used as storage keys.
var ErrInvalidKey = errors.New("invalid snapshot key")

// Repository stores one snapshot per conversation id.
type Repository interface {
	// Load returns the stored snapshot, or an empty store and found=false when
	// nothing has been saved for id. A damaged snapshot returns an error wrapping ErrCorrupt.
	Load(ctx context.Context, id string) (store *vector.Store, found bool, err error)
	// Save atomically replaces the snapshot for id. Readers observe either the
	// previous snapshot or the new one.
	Save(ctx context.Context, id string, s *vector.Store) error
	// Delete removes the snapshot for id. Deleting a missing snapshot is not an error.
	Delete(ctx context.Context, id string) error
	// List returns the ids that currently have a snapshot.
	List(ctx context.Context) ([]string, error)
	Close() error
}

// ValidateKey reports whether id is usable as a key: non-empty, at most 128
// characters from [A-Za-z0-9._-], and not a dot path segment.
func ValidateKey(id string) error {
	if id == "" || len(id) > 128 || id == "." || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, id)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidKey, id)
		}
	}
	return nil
}
