package embedding

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiBatchLimit is the maximum number of requests in one BatchEmbedContents call.
const geminiBatchLimit = 100

// GeminiEmbedder embeds text with a Gemini embedding model.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGeminiEmbedder creates a client authenticated with apiKey.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimensions int) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: model, dimensions: dimensions}, nil
}

// Embed returns the embedding for a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := e.client.EmbeddingModel(e.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("gemini embed: empty response")
	}
	return e.check(res.Embedding.Values)
}

// EmbedBatch embeds texts in batches of up to geminiBatchLimit.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiBatchLimit {
		end := min(start+geminiBatchLimit, len(texts))
		b := em.NewBatch()
		for _, t := range texts[start:end] {
			b.AddContent(genai.Text(t))
		}
		res, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("gemini batch embed: %w", err)
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings, expected %d", len(res.Embeddings), end-start)
		}
		for _, emb := range res.Embeddings {
			vec, err := e.check(emb.Values)
			if err != nil {
				return nil, err
			}
			out = append(out, vec)
		}
	}
	return out, nil
}

func (e *GeminiEmbedder) check(vec []float32) ([]float32, error) {
	if e.dimensions > 0 && len(vec) != e.dimensions {
		return nil, fmt.Errorf("gemini returned %d dimensions, expected %d", len(vec), e.dimensions)
	}
	return vec, nil
}

// Dimensions returns the configured embedding dimension.
func (e *GeminiEmbedder) Dimensions() int {
	return e.dimensions
}

// Close closes the client.
func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}
