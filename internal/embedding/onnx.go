//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXEmbedder runs a sentence embedding model with ONNX Runtime. It requires CGO
// and the onnxruntime shared library. The model takes the onnxInputNames tensors
// of shape [1, maxTokens] and produces a pooled "output" of shape [1, dimensions].
type ONNXEmbedder struct {
	mu        sync.Mutex
	session   *ort.AdvancedSession
	inputs    []*ort.Tensor[int64]
	output    *ort.Tensor[float32]
	tokenizer Tokenizer
	dims      int
	maxTokens int
}

// NewONNXEmbedder loads the model at modelPath, initializing the runtime on first use.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	maxTokens, err := onnxSettings(modelPath, dimensions, maxTokens)
	if err != nil {
		return nil, err
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}

	e := &ONNXEmbedder{tokenizer: &SimpleTokenizer{}, dims: dimensions, maxTokens: maxTokens}
	if err := e.allocate(); err != nil {
		e.release()
		return nil, err
	}
	bound := make([]ort.ArbitraryTensor, len(e.inputs))
	for i, t := range e.inputs {
		bound[i] = t
	}
	e.session, err = ort.NewAdvancedSession(modelPath, onnxInputNames, []string{onnxOutputName},
		bound, []ort.ArbitraryTensor{e.output}, nil)
	if err != nil {
		e.release()
		return nil, fmt.Errorf("create onnx session for %s: %w", modelPath, err)
	}
	return e, nil
}

// allocate creates the tensors bound to the session; every run overwrites them in place.
func (e *ONNXEmbedder) allocate() error {
	shape := ort.NewShape(1, int64(e.maxTokens))
	for i, data := range onnxFeeds(e.tokenizer, "", e.maxTokens) {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return fmt.Errorf("create %s tensor: %w", onnxInputNames[i], err)
		}
		e.inputs = append(e.inputs, t)
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.dims)))
	if err != nil {
		return fmt.Errorf("create %s tensor: %w", onnxOutputName, err)
	}
	e.output = out
	return nil
}

// Embed runs the model on text. Runs are serialized because the session shares its tensors.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("onnx embedder is closed")
	}
	for i, data := range onnxFeeds(e.tokenizer, text, e.maxTokens) {
		copy(e.inputs[i].GetData(), data)
	}
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	return pooledVector(e.output.GetData(), e.dims), nil
}

// EmbedBatch embeds each text in order.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dims
}

// Close destroys the session and its tensors.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	e.release()
	return err
}

func (e *ONNXEmbedder) release() {
	for _, t := range e.inputs {
		_ = t.Destroy()
	}
	e.inputs = nil
	if e.output != nil {
		_ = e.output.Destroy()
		e.output = nil
	}
}
