package convindex

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/docchat/internal/vector"
	"github.com/hyperjump/docchat/pkg/utils"
)

// Index is a handle to one conversation's index.
type Index struct {
	id string
	m  *Manager
}

// Result is one retrieved chunk.
type Result struct {
	Text  string  `json:"text"`
	DocID string  `json:"doc_id,omitempty"`
	Score float64 `json:"score"`
}

// Stats describes a conversation index.
type Stats struct {
	ConversationID string   `json:"conversation_id"`
	Chunks         int      `json:"chunks"`
	Documents      []string `json:"documents"`
	Dimension      int      `json:"dimension"`
}

// ID returns the conversation id.
func (x *Index) ID() string { return x.id }

// Add embeds texts in one batch and appends them as chunks of docID, then
// persists the index. Blank texts are dropped; if none remain Add does nothing.
// It returns the number of chunks added.
func (x *Index) Add(ctx context.Context, docID string, texts []string) (int, error) {
	if strings.TrimSpace(docID) == "" {
		return 0, ErrMissingDocID
	}
	cleaned := utils.CleanTexts(texts)
	if len(cleaned) == 0 {
		return 0, nil
	}
	vecs, err := x.m.embed(ctx, cleaned)
	if err != nil {
		return 0, err
	}

	release := x.m.acquire(x.id, true)
	defer release()

	store, err := x.m.load(ctx, x.id)
	if err != nil {
		return 0, err
	}
	next, err := store.Append(toEntries(docID, cleaned, vecs))
	if err != nil {
		return 0, err
	}
	if err := x.m.commit(ctx, x.id, next); err != nil {
		return 0, err
	}
	x.m.logger.Debug("chunks added",
		zap.String("conversation_id", x.id),
		zap.String("doc_id", docID),
		zap.Int("added", len(cleaned)),
		zap.Int("total", next.Len()),
	)
	return len(cleaned), nil
}

// RemoveDocument drops every chunk of docID, keeping the other chunks with their
// existing vectors. Removing the last document deletes the snapshot. It returns
// the number of chunks removed; zero means nothing was written.
func (x *Index) RemoveDocument(ctx context.Context, docID string) (int, error) {
	if docID == "" {
		return 0, nil
	}
	release := x.m.acquire(x.id, true)
	defer release()

	store, err := x.m.load(ctx, x.id)
	if err != nil {
		return 0, err
	}
	next, removed := store.WithoutDocument(docID)
	if removed == 0 {
		return 0, nil
	}
	if err := x.m.commit(ctx, x.id, next); err != nil {
		return 0, err
	}
	x.m.logger.Debug("document removed",
		zap.String("conversation_id", x.id),
		zap.String("doc_id", docID),
		zap.Int("removed", removed),
		zap.Int("remaining", next.Len()),
	)
	return removed, nil
}

// ReplaceDocument swaps all chunks of docID for texts in a single persisted
// update. With no usable texts it behaves like RemoveDocument.
func (x *Index) ReplaceDocument(ctx context.Context, docID string, texts []string) (int, error) {
	if strings.TrimSpace(docID) == "" {
		return 0, ErrMissingDocID
	}
	cleaned := utils.CleanTexts(texts)
	if len(cleaned) == 0 {
		_, err := x.RemoveDocument(ctx, docID)
		return 0, err
	}
	vecs, err := x.m.embed(ctx, cleaned)
	if err != nil {
		return 0, err
	}

	release := x.m.acquire(x.id, true)
	defer release()

	store, err := x.m.load(ctx, x.id)
	if err != nil {
		return 0, err
	}
	kept, removed := store.WithoutDocument(docID)
	if kept.Len() == 0 {
		// Nothing else remains, so the new vectors set the dimension.
		kept = vector.NewStore()
	}
	next, err := kept.Append(toEntries(docID, cleaned, vecs))
	if err != nil {
		return 0, err
	}
	if err := x.m.commit(ctx, x.id, next); err != nil {
		return 0, err
	}
	x.m.logger.Debug("document replaced",
		zap.String("conversation_id", x.id),
		zap.String("doc_id", docID),
		zap.Int("removed", removed),
		zap.Int("added", len(cleaned)),
	)
	return len(cleaned), nil
}

// Search returns up to topK chunks ranked by cosine similarity to query. When
// allowed is non-nil only chunks of those documents are returned; filtering is
// applied after ranking the whole index. An empty index or a blank query yields
// no results.
func (x *Index) Search(ctx context.Context, query string, topK int, allowed DocSet) ([]Result, error) {
	if topK <= 0 {
		return nil, ErrInvalidLimit
	}
	store, err := x.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if store.Len() == 0 {
		return nil, nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	vecs, err := x.m.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	hits, err := store.Search(vecs[0], topK, allowed.filter())
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{Text: h.Text, DocID: h.DocID, Score: h.Score}
	}
	return results, nil
}

// Clear deletes the conversation's index.
func (x *Index) Clear(ctx context.Context) error {
	release := x.m.acquire(x.id, true)
	defer release()

	if err := x.m.repo.Delete(ctx, x.id); err != nil {
		return err
	}
	x.m.cache.remove(x.id)
	x.m.logger.Debug("index cleared", zap.String("conversation_id", x.id))
	return nil
}

// Stats reports the size of the committed index.
func (x *Index) Stats(ctx context.Context) (Stats, error) {
	store, err := x.snapshot(ctx)
	if err != nil {
		return Stats{}, err
	}
	docs := store.DocumentIDs()
	if docs == nil {
		docs = []string{}
	}
	return Stats{
		ConversationID: x.id,
		Chunks:         store.Len(),
		Documents:      docs,
		Dimension:      store.Dimension(),
	}, nil
}

// snapshot returns the last committed store. Stores are immutable, so the read
// lock is only held while loading.
func (x *Index) snapshot(ctx context.Context) (*vector.Store, error) {
	release := x.m.acquire(x.id, false)
	defer release()
	return x.m.load(ctx, x.id)
}

func toEntries(docID string, texts []string, vecs [][]float32) []vector.Entry {
	entries := make([]vector.Entry, len(texts))
	for i, t := range texts {
		entries[i] = vector.Entry{Text: t, DocID: docID, Vector: vecs[i]}
	}
	return entries
}
