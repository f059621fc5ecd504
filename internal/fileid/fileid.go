// Package fileid derives document ids for ingested files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	prefix  = "file:"
	hashLen = 16
)

// FileDocID returns a stable document id for path of the form
// "file:<base name>:<hash>". The same cleaned path always yields the same id,
// so re-ingesting a file replaces its chunks.
func FileDocID(path string) string {
	clean := filepath.Clean(path)
	sum := sha256.Sum256([]byte(clean))
	return prefix + filepath.Base(clean) + ":" + hex.EncodeToString(sum[:])[:hashLen]
}

// IsFileDocID reports whether id was produced by FileDocID.
func IsFileDocID(id string) bool {
	return strings.HasPrefix(id, prefix) && strings.LastIndexByte(id, ':') == len(id)-hashLen-1
}

// New returns a random document id for content with no natural name.
func New() string {
	return uuid.NewString()
}
