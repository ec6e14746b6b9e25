// Package tagembed maintains the per-dimension tag embedding table and
// answers semantic tag queries over it. Tags are embedded once per
// (tag, dimension) pair; re-running a sweep is cheap because existing pairs
// are skipped.
package tagembed

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/stratamem/strata/internal/embedding"
	"github.com/stratamem/strata/internal/memory"
	"github.com/stratamem/strata/internal/store"
	"github.com/stratamem/strata/internal/vecmath"
)

// Default query knobs.
const (
	DefaultMinSimilarity = 0.5
	DefaultLimit         = 10

	// Hybrid match scores: an exact tag match always outranks any semantic
	// match because semantic scores top out at semanticBoost * 1.0.
	exactBoost    = 2.0
	semanticBoost = 1.5
)

// Manager couples the store's tag_embeddings table with an embedder.
type Manager struct {
	store    *store.MemoryStore
	embedder embedding.Embedder
}

func New(st *store.MemoryStore, emb embedding.Embedder) *Manager {
	return &Manager{store: st, embedder: emb}
}

// EmbedTag embeds one (tag, dimension) pair. Without force, a pair that is
// already embedded is left alone and no provider call happens. Returns
// whether a vector was written.
func (m *Manager) EmbedTag(ctx context.Context, tag string, dim memory.Dimension, force bool) (bool, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false, fmt.Errorf("embed tag: empty tag")
	}

	if !force {
		has, err := m.store.HasTagEmbedding(ctx, tag, dim)
		if err != nil {
			return false, err
		}
		if has {
			return false, nil
		}
	}

	vec, err := m.embedder.Embed(ctx, tag)
	if err != nil {
		return false, fmt.Errorf("embed tag %q: %w", tag, err)
	}
	return m.store.PutTagEmbedding(ctx, tag, dim, vec, force)
}

// SweepResult summarizes a bulk embedding pass.
type SweepResult struct {
	Embedded int      `json:"embedded"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// EmbedTagSet embeds the tags of one tag set, per dimension. This is the
// write-path entry point: after a chunk gains tags, passing its set here
// makes them semantically searchable without scanning the whole store.
// Pairs already embedded are skipped unless force is set.
func (m *Manager) EmbedTagSet(ctx context.Context, ts memory.TagSet, force bool) (*SweepResult, error) {
	res := &SweepResult{}
	for _, dim := range memory.Dimensions {
		tags := ts.Dimension(dim)
		if len(tags) == 0 {
			continue
		}

		var missing []string
		if force {
			missing = tags
		} else {
			for _, tag := range tags {
				has, err := m.store.HasTagEmbedding(ctx, tag, dim)
				if err != nil {
					return nil, err
				}
				if has {
					res.Skipped++
				} else {
					missing = append(missing, tag)
				}
			}
		}
		if len(missing) == 0 {
			continue
		}

		vecs, err := m.embedder.EmbedBatch(ctx, missing)
		if err != nil {
			// A provider outage mid-sweep leaves earlier dimensions done;
			// the next sweep picks up where this one stopped.
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", dim, err))
			continue
		}
		for i, tag := range missing {
			stored, err := m.store.PutTagEmbedding(ctx, tag, dim, vecs[i], force)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s/%s: %v", dim, tag, err))
				continue
			}
			if stored {
				res.Embedded++
			} else {
				res.Skipped++
			}
		}
	}

	log.Debug().Int("embedded", res.Embedded).Int("skipped", res.Skipped).
		Int("errors", len(res.Errors)).Msg("tag embedding pass complete")
	return res, nil
}

// EmbedAllTags embeds every tag currently used by any chunk. Pairs already
// embedded are skipped unless force is set, so a second sweep over an
// unchanged corpus performs zero provider calls.
func (m *Manager) EmbedAllTags(ctx context.Context, force bool) (*SweepResult, error) {
	used, err := m.store.UsedTags(ctx)
	if err != nil {
		return nil, err
	}
	return m.EmbedTagSet(ctx, used, force)
}

// EmbedMissingTags is the catch-up sweep: every used tag, skipping pairs
// that already have a stored vector.
func (m *Manager) EmbedMissingTags(ctx context.Context) (*SweepResult, error) {
	return m.EmbedAllTags(ctx, false)
}

// TagMatch is one result from a tag query.
type TagMatch struct {
	Tag       string           `json:"tag"`
	Dimension memory.Dimension `json:"dimension"`
	Score     float64          `json:"score"`
	// Exact marks a literal string match in a hybrid query.
	Exact bool `json:"exact,omitempty"`
}

// QueryOptions narrows a tag query. Zero values mean: all dimensions,
// DefaultMinSimilarity, DefaultLimit.
type QueryOptions struct {
	Dimension     memory.Dimension
	MinSimilarity float64
	Limit         int
}

func (o QueryOptions) minSim() float64 {
	if o.MinSimilarity <= 0 {
		return DefaultMinSimilarity
	}
	return o.MinSimilarity
}

func (o QueryOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultLimit
	}
	return o.Limit
}

// FindSimilarTags embeds the query and returns stored tags whose cosine
// similarity clears the threshold, best first.
func (m *Manager) FindSimilarTags(ctx context.Context, query string, opts QueryOptions) ([]TagMatch, error) {
	queryVec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	stored, err := m.store.ListTagEmbeddings(ctx, opts.Dimension)
	if err != nil {
		return nil, err
	}

	minSim := opts.minSim()
	var matches []TagMatch
	for _, te := range stored {
		sim := vecmath.Cosine(queryVec, te.Vector)
		if sim < minSim {
			continue
		}
		matches = append(matches, TagMatch{Tag: te.Tag, Dimension: te.Dimension, Score: sim})
	}

	sortMatches(matches)
	if limit := opts.limit(); len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// HybridTagSearch combines exact string matching with semantic similarity.
// An exact match scores exactBoost; a semantic match scores
// semanticBoost * similarity. A tag found both ways keeps its exact score.
func (m *Manager) HybridTagSearch(ctx context.Context, query string, opts QueryOptions) ([]TagMatch, error) {
	query = strings.TrimSpace(query)

	stored, err := m.store.ListTagEmbeddings(ctx, opts.Dimension)
	if err != nil {
		return nil, err
	}

	type key struct {
		tag string
		dim memory.Dimension
	}
	best := make(map[key]TagMatch)

	lowered := strings.ToLower(query)
	for _, te := range stored {
		if lowered != "" && strings.Contains(strings.ToLower(te.Tag), lowered) {
			best[key{te.Tag, te.Dimension}] = TagMatch{
				Tag: te.Tag, Dimension: te.Dimension, Score: exactBoost, Exact: true,
			}
		}
	}

	semantic, err := m.FindSimilarTags(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	for _, sm := range semantic {
		k := key{sm.Tag, sm.Dimension}
		if existing, ok := best[k]; ok && existing.Exact {
			continue
		}
		best[k] = TagMatch{Tag: sm.Tag, Dimension: sm.Dimension, Score: semanticBoost * sm.Score}
	}

	matches := make([]TagMatch, 0, len(best))
	for _, sm := range best {
		matches = append(matches, sm)
	}
	sortMatches(matches)
	if limit := opts.limit(); len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func sortMatches(matches []TagMatch) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Tag != matches[j].Tag {
			return matches[i].Tag < matches[j].Tag
		}
		return matches[i].Dimension < matches[j].Dimension
	})
}
