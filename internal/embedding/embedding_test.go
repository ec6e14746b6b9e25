package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stratamem/strata/internal/vecmath"
)

func TestMockDeterministic(t *testing.T) {
	m := NewMock(64)
	ctx := context.Background()

	a1, err := m.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	a2, _ := m.Embed(ctx, "hello world")
	b, _ := m.Embed(ctx, "something else")

	if vecmath.Cosine(a1, a2) < 0.999999 {
		t.Error("identical text produced different vectors")
	}
	if vecmath.Cosine(a1, b) > 0.9 {
		t.Error("different texts produced near-identical vectors")
	}
	if len(a1) != 64 {
		t.Errorf("dims = %d, want 64", len(a1))
	}

	var norm float64
	for _, v := range a1 {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("vector not unit length: %v", norm)
	}
}

func TestMockCountsCalls(t *testing.T) {
	m := NewMock(8)
	ctx := context.Background()

	m.Embed(ctx, "a")
	m.EmbedBatch(ctx, []string{"b", "c"})
	if m.Calls != 3 {
		t.Errorf("Calls = %d, want 3", m.Calls)
	}
}

func TestTFIDFSimilarity(t *testing.T) {
	docs := []string{
		"the cache invalidation strategy uses write-through",
		"cache warming happens at deploy time",
		"the standup meeting moved to tuesday",
		"meeting notes from the architecture review",
	}
	e := NewTFIDF(docs, 64)
	ctx := context.Background()

	cacheA, err := e.Embed(ctx, "cache invalidation")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	cacheB, _ := e.Embed(ctx, "cache warming strategy")
	meeting, _ := e.Embed(ctx, "standup meeting notes")

	if vecmath.Cosine(cacheA, cacheB) <= vecmath.Cosine(cacheA, meeting) {
		t.Error("cache texts should be closer to each other than to meeting text")
	}
}

func TestTFIDFEmptyCorpus(t *testing.T) {
	e := NewTFIDF(nil, 64)
	if e.Dimensions() != 1 {
		t.Errorf("empty corpus dims = %d, want 1", e.Dimensions())
	}
	vec, err := e.Embed(context.Background(), "anything")
	if err != nil || len(vec) != 1 {
		t.Errorf("Embed = %v, %v", vec, err)
	}
}

func TestTokenize(t *testing.T) {
	tokens := tokenize("Hello, World! go-routines x y2")
	want := []string{"hello", "world", "go-routines", "y2"}
	if len(tokens) != len(want) {
		t.Fatalf("tokenize = %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, tokens[i], want[i])
		}
	}
}

func TestNewUnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "carrier-pigeon"}); err == nil {
		t.Error("unknown provider should error")
	}
}

func TestNewMockProvider(t *testing.T) {
	e, err := New(Config{Provider: ProviderMock, Dimensions: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.Dimensions() != 16 || e.Model() != "mock" {
		t.Errorf("mock = %s/%d", e.Model(), e.Dimensions())
	}
}
