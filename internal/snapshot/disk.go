package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/docchat/internal/vector"
	"github.com/hyperjump/docchat/pkg/utils"
)

const fileExt = ".idx"

// DiskRepository keeps one <id>.idx file per conversation under a directory.
type DiskRepository struct {
	dir    string
	logger *zap.Logger
}

// DiskOption configures a DiskRepository.
type DiskOption func(*DiskRepository)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) DiskOption {
	return func(r *DiskRepository) { r.logger = l }
}

// NewDiskRepository creates dir if needed and returns a repository rooted there.
func NewDiskRepository(dir string, opts ...DiskOption) (*DiskRepository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	r := &DiskRepository{dir: dir}
	for _, o := range opts {
		o(r)
	}
	r.logger = utils.OrNop(r.logger)
	return r, nil
}

// Dir returns the snapshot directory.
func (r *DiskRepository) Dir() string { return r.dir }

func (r *DiskRepository) path(id string) (string, error) {
	if err := ValidateKey(id); err != nil {
		return "", err
	}
	return filepath.Join(r.dir, id+fileExt), nil
}

// Load reads the snapshot for id.
func (r *DiskRepository) Load(_ context.Context, id string) (*vector.Store, bool, error) {
	p, err := r.path(id)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return vector.NewStore(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read snapshot %s: %w", id, err)
	}
	s, err := Unmarshal(data)
	if err != nil {
		r.logger.Error("corrupt snapshot", zap.String("conversation_id", id), zap.String("path", p), zap.Error(err))
		return nil, false, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	return s, true, nil
}

// Save writes the snapshot to a temporary file in the same directory, syncs it and
// renames it over the previous file.
func (r *DiskRepository) Save(_ context.Context, id string, s *vector.Store) error {
	p, err := r.path(id)
	if err != nil {
		return err
	}
	data, err := Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", id, err)
	}
	tmp, err := os.CreateTemp(r.dir, "."+id+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write snapshot %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync snapshot %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close snapshot %s: %w", id, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		cleanup()
		return fmt.Errorf("commit snapshot %s: %w", id, err)
	}
	r.logger.Debug("snapshot saved", zap.String("conversation_id", id), zap.Int("entries", s.Len()), zap.Int("bytes", len(data)))
	return nil
}

// Delete removes the snapshot file for id.
func (r *DiskRepository) Delete(_ context.Context, id string) error {
	p, err := r.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	return nil
}

// List returns the ids of all snapshot files, sorted.
func (r *DiskRepository) List(_ context.Context) ([]string, error) {
	des, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	var ids []string
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op.
func (r *DiskRepository) Close() error { return nil }
