// Package convindex implements per-conversation semantic indexes: adding and
// removing document chunks, cosine similarity search with optional document
// restriction, and durable snapshots, with mutations serialized per conversation.
package convindex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/docchat/internal/embedding"
	"github.com/hyperjump/docchat/internal/snapshot"
	"github.com/hyperjump/docchat/internal/vector"
	"github.com/hyperjump/docchat/pkg/utils"
)

const (
	defaultEmbedTimeout = 30 * time.Second
	defaultCacheSize    = 256
)

// Manager owns the conversation indexes backed by one repository and one embedder.
type Manager struct {
	repo         snapshot.Repository
	embedder     embedding.Embedder
	logger       *zap.Logger
	embedTimeout time.Duration
	cacheSize    int

	mu    sync.Mutex
	locks map[string]*keyLock

	cache *storeCache
	loads singleflight.Group
}

// keyLock guards one conversation id. It is removed from the table once no
// goroutine holds or waits for it.
type keyLock struct {
	sync.RWMutex
	refs int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithEmbedTimeout bounds every embedder call. Non-positive values keep the default.
func WithEmbedTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.embedTimeout = d
		}
	}
}

// WithCacheSize sets how many loaded conversation stores stay in memory.
func WithCacheSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.cacheSize = n
		}
	}
}

// NewManager returns a manager persisting to repo and embedding with embedder.
func NewManager(repo snapshot.Repository, embedder embedding.Embedder, opts ...Option) *Manager {
	m := &Manager{
		repo:         repo,
		embedder:     embedder,
		embedTimeout: defaultEmbedTimeout,
		cacheSize:    defaultCacheSize,
		locks:        make(map[string]*keyLock),
	}
	for _, o := range opts {
		o(m)
	}
	m.logger = utils.OrNop(m.logger)
	m.cache = newStoreCache(m.cacheSize)
	return m
}

// Index returns the handle for a conversation. Handles are cheap; the index is
// loaded lazily on first use.
func (m *Manager) Index(conversationID string) *Index {
	return &Index{id: conversationID, m: m}
}

// Conversations returns the ids that have a persisted index.
func (m *Manager) Conversations(ctx context.Context) ([]string, error) {
	return m.repo.List(ctx)
}

// acquire locks id for writing or reading and returns the matching release func.
func (m *Manager) acquire(id string, write bool) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &keyLock{}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	if write {
		l.Lock()
	} else {
		l.RLock()
	}
	return func() {
		if write {
			l.Unlock()
		} else {
			l.RUnlock()
		}
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
}

// load returns the committed store for id. The caller must hold the key lock.
func (m *Manager) load(ctx context.Context, id string) (*vector.Store, error) {
	if s, ok := m.cache.get(id); ok {
		return s, nil
	}
	v, err, _ := m.loads.Do(id, func() (any, error) {
		s, found, err := m.repo.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			m.cache.put(id, s)
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*vector.Store), nil
}

// commit persists s as the new state of id, deleting the snapshot when s is empty.
// The caller must hold the write lock.
func (m *Manager) commit(ctx context.Context, id string, s *vector.Store) error {
	if s.Len() == 0 {
		if err := m.repo.Delete(ctx, id); err != nil {
			return err
		}
		m.cache.remove(id)
		return nil
	}
	if err := m.repo.Save(ctx, id, s); err != nil {
		return err
	}
	m.cache.put(id, s)
	return nil
}

// embed calls the embedder once for the batch under the configured timeout.
func (m *Manager) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, m.embedTimeout)
	defer cancel()

	start := time.Now()
	vecs, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		m.logger.Warn("embedding failed", zap.Int("texts", len(texts)), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingUnavailable, len(vecs), len(texts))
	}
	return vecs, nil
}
