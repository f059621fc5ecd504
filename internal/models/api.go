// Package models defines the request and response types of the HTTP API.
package models

import (
	"errors"
	"strings"
)

// ErrEmptyQuery is returned when a search or message has no text.
var ErrEmptyQuery = errors.New("query cannot be empty")

// AddDocumentRequest adds chunks to a conversation. Content is split with the
// configured chunker; Texts are added as given. DocID is generated when empty.
type AddDocumentRequest struct {
	DocID   string   `json:"doc_id,omitempty"`
	Texts   []string `json:"texts,omitempty"`
	Content string   `json:"content,omitempty"`
}

// AddDocumentResponse reports how many chunks were stored.
type AddDocumentResponse struct {
	DocID  string `json:"doc_id"`
	Chunks int    `json:"chunks"`
}

// RemoveDocumentResponse reports how many chunks were dropped.
type RemoveDocumentResponse struct {
	DocID   string `json:"doc_id"`
	Removed int    `json:"removed"`
}

// SearchRequest searches one conversation. A nil DocIDs searches every
// document; a non-nil slice restricts results to those documents.
type SearchRequest struct {
	Query  string   `json:"query"`
	TopK   int      `json:"top_k,omitempty"`
	DocIDs []string `json:"doc_ids,omitempty"`
}

// Validate checks the query and normalizes TopK into [1, maxTopK], using
// defaultTopK when unset.
func (q *SearchRequest) Validate(defaultTopK, maxTopK int) error {
	if strings.TrimSpace(q.Query) == "" {
		return ErrEmptyQuery
	}
	if q.TopK <= 0 {
		q.TopK = defaultTopK
	}
	if q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	return nil
}

// SearchResponse lists retrieved chunk texts in ranked order.
// Scores and document ids stay server side.
type SearchResponse struct {
	Query     string   `json:"query"`
	Results   []string `json:"results"`
	QueryTime int64    `json:"query_time_ms"`
}

// MessageRequest asks a question. Content and Query are synonyms; Content wins.
// When Documents is present only its included documents are searched.
type MessageRequest struct {
	Content   string        `json:"content,omitempty"`
	Query     string        `json:"query,omitempty"`
	Documents []DocumentRef `json:"documents,omitempty"`
}

// Question returns the trimmed question text.
func (m *MessageRequest) Question() string {
	if q := strings.TrimSpace(m.Content); q != "" {
		return q
	}
	return strings.TrimSpace(m.Query)
}

// MessageResponse carries the generated answer and the chunks it was drawn from.
// Degraded is set when retrieval failed and the answer was produced without context.
type MessageResponse struct {
	Answer        string   `json:"answer"`
	ContextChunks []string `json:"context_chunks"`
	Degraded      bool     `json:"degraded,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
