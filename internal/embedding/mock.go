package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/stratamem/strata/internal/vecmath"
)

// Mock is a deterministic embedder for tests: identical text always maps to
// the identical unit vector, and different texts almost never collide.
type Mock struct {
	dims int

	// Calls counts Embed invocations (batch items included), letting tests
	// assert that cached paths skip the provider.
	Calls int
}

func NewMock(dims int) *Mock {
	if dims <= 0 {
		dims = 384
	}
	return &Mock{dims: dims}
}

func (m *Mock) Model() string   { return "mock" }
func (m *Mock) Dimensions() int { return m.dims }

func (m *Mock) Embed(_ context.Context, text string) ([]float32, error) {
	m.Calls++

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.dims)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	vecmath.Normalize(vec)
	return vec, nil
}

func (m *Mock) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return batchOneByOne(ctx, m, texts)
}
