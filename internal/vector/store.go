// Package vector provides the per-conversation entry store and exact cosine ranking.
package vector

import (
	"errors"
	"fmt"
)

// ErrDimensionMismatch is returned when a vector's length differs from the store's dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Entry is one chunk of document text with its embedding.
// DocID is empty when the chunk is not associated with a document.
type Entry struct {
	Text   string
	DocID  string
	Vector []float32
}

// Hit is a ranked entry returned by Search.
type Hit struct {
	Entry
	Score float64
}

// Store is an ordered collection of entries that all share one vector dimension.
// A Store is never modified after construction: Append and WithoutDocument return
// new stores, so a *Store can be read concurrently without locking.
type Store struct {
	dimension int
	entries   []Entry
	norms     []float64
}

// NewStore returns an empty store. Its dimension is fixed by the first Append.
func NewStore() *Store {
	return &Store{}
}

// NewStoreFromEntries builds a store holding entries in order. Every vector must have
// length dimension.
func NewStoreFromEntries(dimension int, entries []Entry) (*Store, error) {
	if len(entries) == 0 {
		return &Store{dimension: dimension}, nil
	}
	s := &Store{dimension: dimension}
	return s.Append(entries)
}

// Len returns the number of entries.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Dimension returns the shared vector length, or 0 for a store that never held entries.
func (s *Store) Dimension() int {
	if s == nil {
		return 0
	}
	return s.dimension
}

// Entries returns the entries in insertion order. The returned slice must not be modified.
func (s *Store) Entries() []Entry {
	if s == nil {
		return nil
	}
	return s.entries
}

// DocumentIDs returns the distinct non-empty document IDs in first-seen order.
func (s *Store) DocumentIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, e := range s.Entries() {
		if e.DocID == "" {
			continue
		}
		if _, ok := seen[e.DocID]; ok {
			continue
		}
		seen[e.DocID] = struct{}{}
		ids = append(ids, e.DocID)
	}
	return ids
}

// Append returns a new store with entries added after the existing ones.
// Vectors are copied. If any vector's length differs from the store's dimension (or,
// for a store without a dimension yet, from the first new vector), nothing is added
// and ErrDimensionMismatch is returned.
func (s *Store) Append(entries []Entry) (*Store, error) {
	if len(entries) == 0 {
		return s, nil
	}
	dim := s.Dimension()
	if dim == 0 {
		dim = len(entries[0].Vector)
	}
	if dim == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	n := s.Len()
	next := &Store{
		dimension: dim,
		entries:   make([]Entry, n, n+len(entries)),
		norms:     make([]float64, n, n+len(entries)),
	}
	copy(next.entries, s.Entries())
	if s != nil {
		copy(next.norms, s.norms)
	}
	for i, e := range entries {
		if len(e.Vector) != dim {
			return nil, fmt.Errorf("%w: entry %d has %d, expected %d", ErrDimensionMismatch, i, len(e.Vector), dim)
		}
		vec := make([]float32, dim)
		copy(vec, e.Vector)
		next.entries = append(next.entries, Entry{Text: e.Text, DocID: e.DocID, Vector: vec})
		next.norms = append(next.norms, L2Norm(vec))
	}
	return next, nil
}

// WithoutDocument returns a store holding every entry whose DocID is not docID, with
// their existing vectors, and the number of entries dropped. When nothing matches the
// receiver itself is returned.
func (s *Store) WithoutDocument(docID string) (*Store, int) {
	n := s.Len()
	next := &Store{dimension: s.Dimension()}
	for i, e := range s.Entries() {
		if e.DocID == docID {
			continue
		}
		next.entries = append(next.entries, e)
		next.norms = append(next.norms, s.norms[i])
	}
	removed := n - len(next.entries)
	if removed == 0 {
		return s, 0
	}
	return next, removed
}

// Search ranks every entry against query by cosine similarity and returns up to k hits
// in ranked order. When allow is non-nil, entries for which allow(DocID) is false are
// skipped after ranking, so filtering never reduces the result below k while other
// allowed entries remain. Equal scores keep insertion order.
func (s *Store) Search(query []float32, k int, allow func(docID string) bool) ([]Hit, error) {
	if k <= 0 || s.Len() == 0 {
		return nil, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), s.dimension)
	}
	ranked := rank(query, s.entries, s.norms)
	hits := make([]Hit, 0, k)
	for _, r := range ranked {
		e := s.entries[r.index]
		if allow != nil && !allow(e.DocID) {
			continue
		}
		hits = append(hits, Hit{Entry: e, Score: r.score})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}
