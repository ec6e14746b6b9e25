package vecmath

import (
	"math"
	"strings"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"mismatched lengths", []float32{1, 0}, []float32{1}, 0},
		{"empty", nil, nil, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("Normalize = %v, want [0.6 0.8]", v)
	}

	zero := []float32{0, 0}
	Normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}

func TestSimilarityScore(t *testing.T) {
	if got := SimilarityScore(1); got != 1 {
		t.Errorf("SimilarityScore(1) = %v", got)
	}
	if got := SimilarityScore(-1); got != 0 {
		t.Errorf("SimilarityScore(-1) = %v", got)
	}
	if got := SimilarityScore(0); got != 0.5 {
		t.Errorf("SimilarityScore(0) = %v", got)
	}
	if got := SimilarityScore(1.5); got != 1 {
		t.Errorf("SimilarityScore clamps high: %v", got)
	}
}

func TestTruncateTokens(t *testing.T) {
	text := "one two three four five"
	if got := TruncateTokens(text, 10); got != text {
		t.Errorf("short text changed: %q", got)
	}
	got := TruncateTokens(text, 3)
	if !strings.HasPrefix(got, "one two three") || got == text {
		t.Errorf("TruncateTokens = %q", got)
	}
	if got := TruncateTokens(text, 0); got != text {
		t.Errorf("zero cap changed text: %q", got)
	}
}
