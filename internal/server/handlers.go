package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/docchat/internal/config"
	"github.com/hyperjump/docchat/internal/convindex"
	"github.com/hyperjump/docchat/internal/fileid"
	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/internal/snapshot"
)

type ctxKey struct{}

// requireConversationID rejects non-UUID conversation ids and stores the
// canonical form in the request context.
func (s *Server) requireConversationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "conversationID"))
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "conversation id must be a UUID")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, id.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func conversationID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ids, err := s.indexes.Conversations(r.Context())
	if err != nil {
		s.respondIndexError(w, err)
		return
	}
	resp := map[string]interface{}{
		"conversations": len(ids),
		"config": map[string]interface{}{
			"storage_backend":      s.config.Storage.Backend,
			"embedding_provider":   s.config.Embedding.Provider,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"chunk_size":           s.config.Search.ChunkSize,
			"chunk_overlap":        s.config.Search.ChunkOverlap,
		},
	}
	if diskBytes, err := snapshot.DiskUsageBytes(s.storagePath()); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) storagePath() string {
	if s.config.Storage.Backend == config.BackendSQLite {
		return s.config.Storage.DatabasePath
	}
	return s.config.Storage.SnapshotDir
}

func (s *Server) handleWatchDirectories(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	ids, err := s.indexes.Conversations(r.Context())
	if err != nil {
		s.respondIndexError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"conversations": ids})
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var req models.AddDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DocID == "" {
		req.DocID = fileid.New()
	}
	convID := conversationID(r)
	s.logger.Debug("add document request", zap.String("conversation_id", convID), zap.String("doc_id", req.DocID))
	n, err := s.indexer.AddDocument(r.Context(), convID, req.DocID, req.Texts, req.Content)
	if err != nil {
		s.respondIndexError(w, err)
		return
	}
	status := http.StatusCreated
	if n == 0 {
		status = http.StatusOK
	}
	s.respondJSON(w, status, models.AddDocumentResponse{DocID: req.DocID, Chunks: n})
}

func (s *Server) handleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	convID := conversationID(r)
	s.logger.Debug("remove document request", zap.String("conversation_id", convID), zap.String("doc_id", docID))
	n, err := s.indexes.Index(convID).RemoveDocument(r.Context(), docID)
	if err != nil {
		s.respondIndexError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.RemoveDocumentResponse{DocID: docID, Removed: n})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.config.Search.DefaultTopK, s.config.Search.MaxTopK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var allowed convindex.DocSet
	if req.DocIDs != nil {
		allowed = convindex.NewDocSet(req.DocIDs...)
	}
	start := time.Now()
	results, err := s.indexes.Index(conversationID(r)).Search(r.Context(), req.Query, req.TopK, allowed)
	if err != nil {
		s.respondIndexError(w, err)
		return
	}
	resp := models.SearchResponse{
		Query:     req.Query,
		Results:   make([]string, len(results)),
		QueryTime: time.Since(start).Milliseconds(),
	}
	for i, res := range results {
		resp.Results[i] = res.Text
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req models.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, models.ErrInvalidInclude) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	question := req.Question()
	if question == "" {
		s.respondError(w, http.StatusBadRequest, models.ErrEmptyQuery.Error())
		return
	}
	var allowed convindex.DocSet
	if req.Documents != nil {
		allowed = convindex.NewDocSet(models.AllowedDocs(req.Documents)...)
	}
	reply, err := s.chat.Ask(r.Context(), conversationID(r), question, allowed)
	if err != nil {
		s.respondIndexError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.MessageResponse{
		Answer:        reply.Answer,
		ContextChunks: reply.Context,
		Degraded:      reply.Degraded,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	convID := conversationID(r)
	if err := s.indexes.Index(convID).Clear(r.Context()); err != nil {
		s.respondIndexError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"conversation_id": convID, "status": "cleared"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.indexes.Index(conversationID(r)).Stats(r.Context())
	if err != nil {
		s.respondIndexError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

// statusFor maps index errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, convindex.ErrMissingDocID),
		errors.Is(err, convindex.ErrInvalidLimit),
		errors.Is(err, models.ErrEmptyQuery),
		errors.Is(err, snapshot.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, convindex.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, convindex.ErrDimensionMismatch):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondIndexError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	switch {
	case errors.Is(err, convindex.ErrCorruptSnapshot):
		s.logger.Error("corrupt snapshot", zap.Error(err))
	case status >= http.StatusInternalServerError:
		s.logger.Error("request failed", zap.Error(err))
	default:
		s.logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, models.ErrorResponse{Error: message})
}
