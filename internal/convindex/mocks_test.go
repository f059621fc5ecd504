package convindex

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	var vecs [][]float32
	if v := args.Get(0); v != nil {
		vecs = v.([][]float32)
	}
	return vecs, args.Error(1)
}

func (m *mockEmbedder) Dimensions() int { return 2 }

func (m *mockEmbedder) Close() error { return nil }

// blockingEmbedder waits until its context ends.
type blockingEmbedder struct{}

func (blockingEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b blockingEmbedder) EmbedBatch(ctx context.Context, _ []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingEmbedder) Dimensions() int { return 2 }

func (blockingEmbedder) Close() error { return nil }
