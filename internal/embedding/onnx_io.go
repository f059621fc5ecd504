package embedding

import (
	"fmt"

	"github.com/hyperjump/docchat/pkg/utils"
)

// Tensor names expected by the ONNX sentence model. Inputs are listed in the
// order the tokenizer produces them.
var onnxInputNames = []string{"input_ids", "attention_mask", "token_type_ids"}

const (
	onnxOutputName       = "output"
	defaultONNXMaxTokens = 256
)

// onnxSettings validates the model settings and returns the effective token window.
func onnxSettings(modelPath string, dimensions, maxTokens int) (int, error) {
	if modelPath == "" {
		return 0, fmt.Errorf("onnx model path is required")
	}
	if dimensions <= 0 {
		return 0, fmt.Errorf("onnx dimensions must be positive, got %d", dimensions)
	}
	if maxTokens <= 2 {
		maxTokens = defaultONNXMaxTokens
	}
	return maxTokens, nil
}

// onnxFeeds pairs tokenizer output with onnxInputNames.
func onnxFeeds(tok Tokenizer, text string, maxTokens int) [][]int64 {
	ids, mask, types := tok.Tokenize(text, maxTokens)
	return [][]int64{ids, mask, types}
}

// pooledVector copies the first dimensions values of a model output and
// scales them to unit length.
func pooledVector(raw []float32, dimensions int) []float32 {
	vec := make([]float32, dimensions)
	copy(vec, raw)
	utils.NormalizeL2(vec)
	return vec
}
