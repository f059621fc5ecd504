package vector

import (
	"math"
	"sort"

	"github.com/hyperjump/docchat/pkg/utils"
)

// normEpsilon replaces a zero norm in the cosine denominator.
const normEpsilon = 1e-12

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	return utils.L2Norm(x)
}

// CosineSimilarity returns the dot product of a and b after L2 normalization.
// A zero vector scores 0 against anything. Mismatched lengths score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return InnerProduct(a, b) / (math.Max(L2Norm(a), normEpsilon) * math.Max(L2Norm(b), normEpsilon))
}

type scored struct {
	index int
	score float64
}

// rank scores every entry against query and sorts by score descending. The sort is
// stable so ties keep insertion order. norms[i] is the precomputed L2 norm of entries[i].
func rank(query []float32, entries []Entry, norms []float64) []scored {
	qn := math.Max(L2Norm(query), normEpsilon)
	out := make([]scored, len(entries))
	for i, e := range entries {
		out[i] = scored{
			index: i,
			score: InnerProduct(query, e.Vector) / (qn * math.Max(norms[i], normEpsilon)),
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}
