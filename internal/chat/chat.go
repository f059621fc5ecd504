// Package chat answers questions about a conversation's documents.
package chat

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/docchat/internal/answer"
	"github.com/hyperjump/docchat/internal/convindex"
	"github.com/hyperjump/docchat/pkg/utils"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 8

// Reply is the outcome of Ask.
type Reply struct {
	Answer  string
	Context []string
	// Degraded is set when retrieval failed and the answer had no context.
	Degraded bool
}

// Service retrieves context from a conversation index and hands it to a generator.
type Service struct {
	indexes   *convindex.Manager
	generator answer.Generator
	topK      int
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTopK sets how many chunks are retrieved per question.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// NewService returns a chat service.
func NewService(indexes *convindex.Manager, generator answer.Generator, opts ...Option) *Service {
	s := &Service{indexes: indexes, generator: generator, topK: DefaultTopK}
	for _, o := range opts {
		o(s)
	}
	s.logger = utils.OrNop(s.logger)
	return s
}

// Ask answers question from the chunks of the allowed documents (all documents when
// allowed is nil). An unavailable embedder degrades to answering without context;
// dimension mismatches and corrupt snapshots are returned.
func (s *Service) Ask(ctx context.Context, conversationID, question string, allowed convindex.DocSet) (*Reply, error) {
	question = strings.TrimSpace(question)
	reply := &Reply{Context: []string{}}

	results, err := s.indexes.Index(conversationID).Search(ctx, question, s.topK, allowed)
	switch {
	case errors.Is(err, convindex.ErrEmbeddingUnavailable):
		s.logger.Warn("retrieval degraded", zap.String("conversation_id", conversationID), zap.Error(err))
		reply.Degraded = true
	case err != nil:
		return nil, err
	}
	for _, r := range results {
		reply.Context = append(reply.Context, r.Text)
	}

	text, err := s.generator.Generate(ctx, question, strings.Join(reply.Context, "\n"))
	if err != nil {
		return nil, err
	}
	reply.Answer = text
	s.logger.Debug("question answered",
		zap.String("conversation_id", conversationID),
		zap.Int("context_chunks", len(reply.Context)),
		zap.Bool("degraded", reply.Degraded),
	)
	return reply, nil
}
