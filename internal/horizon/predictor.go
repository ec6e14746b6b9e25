// Package horizon predicts how long a chunk stays relevant. It batches
// un-annotated chunks to a completion provider and writes the predicted
// horizon back onto each chunk. Prediction is advisory: a provider failure
// degrades to a conservative default annotation, never to an error.
package horizon

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stratamem/strata/internal/llm"
	"github.com/stratamem/strata/internal/memory"
	"github.com/stratamem/strata/internal/store"
)

// Defaults for the conservative fallback annotation.
const (
	fallbackHorizon    = 30 * 24 * time.Hour
	fallbackConfidence = 0.3

	// defaultBatchSize keeps prompts small enough for cheap models.
	defaultBatchSize = 20
)

// Predictor annotates chunks with relevance horizons.
type Predictor struct {
	store  *store.MemoryStore
	client llm.Client
	batch  int
}

func New(st *store.MemoryStore, client llm.Client) *Predictor {
	return &Predictor{store: st, client: client, batch: defaultBatchSize}
}

// Result reports one annotation pass.
type Result struct {
	Annotated int `json:"annotated"`
	Defaulted int `json:"defaulted"`
}

// AnnotateTier predicts horizons for every un-annotated chunk in the given
// tier. Chunks the provider fails to cover get the conservative default.
func (p *Predictor) AnnotateTier(ctx context.Context, tier memory.Tier) (Result, error) {
	var res Result

	// One pass annotates up to a page of chunks; the scheduler reinvokes.
	chunks, err := p.store.ListByTier(ctx, tier, 1000, 0)
	if err != nil {
		return res, fmt.Errorf("list %s: %w", tier, err)
	}

	var pending []*memory.Chunk
	for _, c := range chunks {
		if c.HorizonCategory == "" {
			pending = append(pending, c)
		}
	}

	for start := 0; start < len(pending); start += p.batch {
		end := start + p.batch
		if end > len(pending) {
			end = len(pending)
		}
		a, d := p.annotateBatch(ctx, pending[start:end])
		res.Annotated += a
		res.Defaulted += d
	}

	if res.Annotated+res.Defaulted > 0 {
		log.Info().Str("tier", string(tier)).Int("annotated", res.Annotated).
			Int("defaulted", res.Defaulted).Msg("horizon annotation complete")
	}
	return res, nil
}

// prediction is one entry of the provider's JSON array reply.
type prediction struct {
	ID         string  `json:"id"`
	Horizon    string  `json:"horizon"` // RFC 3339 timestamp or "permanent"
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category"`
}

func (p *Predictor) annotateBatch(ctx context.Context, chunks []*memory.Chunk) (annotated, defaulted int) {
	preds, err := p.predict(ctx, chunks)
	if err != nil {
		log.Warn().Err(err).Int("chunks", len(chunks)).Msg("horizon prediction failed, applying defaults")
	}

	byID := make(map[string]prediction, len(preds))
	for _, pr := range preds {
		byID[pr.ID] = pr
	}

	now := time.Now().UTC()
	for _, c := range chunks {
		h, ok := p.toHorizon(byID[c.ID], now)
		if !ok {
			h = defaultAnnotation(now)
		}
		if err := p.store.SetHorizon(ctx, c.ID, h); err != nil {
			log.Warn().Err(err).Str("chunk", c.ID).Msg("write horizon")
			continue
		}
		if ok {
			annotated++
		} else {
			defaulted++
		}
	}
	return annotated, defaulted
}

func (p *Predictor) predict(ctx context.Context, chunks []*memory.Chunk) ([]prediction, error) {
	resp, err := p.client.Complete(ctx, buildPrompt(chunks))
	if err != nil {
		return nil, err
	}
	return parsePredictions(resp.Content)
}

// toHorizon validates one prediction and converts it to a store annotation.
func (p *Predictor) toHorizon(pr prediction, now time.Time) (store.Horizon, bool) {
	if pr.ID == "" || !validCategory(pr.Category) {
		return store.Horizon{}, false
	}

	h := store.Horizon{
		Reasoning:  pr.Reasoning,
		Confidence: clamp01(pr.Confidence),
		Category:   memory.HorizonCategory(pr.Category),
	}
	if strings.EqualFold(pr.Horizon, "permanent") {
		return h, true // nil timestamp means permanent
	}
	ts, err := time.Parse(time.RFC3339, pr.Horizon)
	if err != nil || ts.Before(now) {
		return store.Horizon{}, false
	}
	h.Timestamp = &ts
	return h, true
}

func defaultAnnotation(now time.Time) store.Horizon {
	ts := now.Add(fallbackHorizon)
	return store.Horizon{
		Timestamp:  &ts,
		Reasoning:  "provider unavailable, conservative default",
		Confidence: fallbackConfidence,
		Category:   memory.HorizonSituational,
	}
}

func validCategory(cat string) bool {
	switch memory.HorizonCategory(cat) {
	case memory.HorizonEphemeral, memory.HorizonSituational, memory.HorizonProjectScoped,
		memory.HorizonRelational, memory.HorizonIdentity, memory.HorizonPolicy:
		return true
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// parsePredictions extracts a JSON array from the provider response, which
// may be wrapped in markdown code fences or prose.
func parsePredictions(content string) ([]prediction, error) {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) > 2 {
			content = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	content = strings.TrimSpace(content)

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var preds []prediction
	if err := json.Unmarshal([]byte(content[start:end+1]), &preds); err != nil {
		return nil, fmt.Errorf("unmarshal predictions: %w", err)
	}
	return preds, nil
}
