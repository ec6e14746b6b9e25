// Package vecmath provides the small set of vector and text helpers shared
// by the search and embedding layers. Pure functions, no state.
package vecmath

import (
	"math"
	"strings"
)

// Cosine computes the cosine similarity between two vectors. Mismatched or
// empty vectors score zero rather than erroring — a missing embedding is a
// non-match, not a failure.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize scales vec in place to unit length. Zero vectors are left as-is.
func Normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
}

// SimilarityScore maps a cosine similarity in [-1,1] onto [0,1] so scores
// from the vector path are commensurate with text-relevance scores.
func SimilarityScore(cos float64) float64 {
	s := (cos + 1) / 2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// TruncateTokens trims text to at most maxTokens whitespace-separated
// tokens, appending an ellipsis when anything was dropped. Tokens are an
// approximation; the callers only need a rough document cap.
func TruncateTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	fields := strings.Fields(text)
	if len(fields) <= maxTokens {
		return text
	}
	return strings.Join(fields[:maxTokens], " ") + " …"
}
