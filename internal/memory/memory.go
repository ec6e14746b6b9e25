// Package memory defines the core chunk data types shared across the store,
// search, and lifecycle layers.
package memory

import (
	"sort"
	"strings"
	"time"
)

// Tier is the retention class a chunk occupies. A chunk is in exactly one
// tier at any time; tier transitions are the only way it moves between
// retention regimes.
type Tier string

const (
	TierWorking   Tier = "working"
	TierShortTerm Tier = "short_term"
	TierLongTerm  Tier = "long_term"
	TierEpisodic  Tier = "episodic"
)

// Tiers lists all tiers in promotion order.
var Tiers = []Tier{TierWorking, TierShortTerm, TierLongTerm, TierEpisodic}

// ValidTiers are the allowed tier values.
var ValidTiers = map[Tier]bool{
	TierWorking:   true,
	TierShortTerm: true,
	TierLongTerm:  true,
	TierEpisodic:  true,
}

// HorizonCategory classifies a predicted relevance horizon.
type HorizonCategory string

const (
	HorizonEphemeral     HorizonCategory = "ephemeral"
	HorizonSituational   HorizonCategory = "situational"
	HorizonProjectScoped HorizonCategory = "project_scoped"
	HorizonRelational    HorizonCategory = "relational"
	HorizonIdentity      HorizonCategory = "identity"
	HorizonPolicy        HorizonCategory = "policy"
)

// Dimension names one of the five fixed tag dimensions.
type Dimension string

const (
	DimConcepts    Dimension = "concepts"
	DimSpecialized Dimension = "specialized"
	DimPeople      Dimension = "people"
	DimPlaces      Dimension = "places"
	DimProjects    Dimension = "projects"
)

// Dimensions lists the five tag dimensions in canonical order.
var Dimensions = []Dimension{DimConcepts, DimSpecialized, DimPeople, DimPlaces, DimProjects}

// TagSet is the structured multi-dimensional tag set of a chunk. It is a
// fixed-shape record rather than an open map so a stray dimension name
// cannot silently fail to match in search.
type TagSet struct {
	Concepts    []string `json:"concepts,omitempty"`
	Specialized []string `json:"specialized,omitempty"`
	People      []string `json:"people,omitempty"`
	Places      []string `json:"places,omitempty"`
	Projects    []string `json:"projects,omitempty"`
}

// Dimension returns the tag list for the named dimension.
func (t TagSet) Dimension(d Dimension) []string {
	switch d {
	case DimConcepts:
		return t.Concepts
	case DimSpecialized:
		return t.Specialized
	case DimPeople:
		return t.People
	case DimPlaces:
		return t.Places
	case DimProjects:
		return t.Projects
	}
	return nil
}

// SetDimension replaces the tag list for the named dimension.
func (t *TagSet) SetDimension(d Dimension, tags []string) {
	switch d {
	case DimConcepts:
		t.Concepts = tags
	case DimSpecialized:
		t.Specialized = tags
	case DimPeople:
		t.People = tags
	case DimPlaces:
		t.Places = tags
	case DimProjects:
		t.Projects = tags
	}
}

// Normalize deduplicates each dimension, dropping empty strings and
// preserving a stable sorted order.
func (t *TagSet) Normalize() {
	for _, d := range Dimensions {
		t.SetDimension(d, dedupe(t.Dimension(d)))
	}
}

// IsEmpty reports whether no dimension carries any tag.
func (t TagSet) IsEmpty() bool {
	for _, d := range Dimensions {
		if len(t.Dimension(d)) > 0 {
			return false
		}
	}
	return true
}

// Flatten joins all tags across dimensions into one search-indexable string.
func (t TagSet) Flatten() string {
	var all []string
	for _, d := range Dimensions {
		all = append(all, t.Dimension(d)...)
	}
	return strings.Join(all, " ")
}

// Union merges another tag set into this one, deduplicating per dimension.
func (t *TagSet) Union(other TagSet) {
	for _, d := range Dimensions {
		t.SetDimension(d, dedupe(append(t.Dimension(d), other.Dimension(d)...)))
	}
}

func dedupe(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Chunk is the atomic, independently retrievable unit of stored memory text.
type Chunk struct {
	ID      string `json:"id"`
	Tier    Tier   `json:"tier"`
	Content string `json:"content"`
	Summary string `json:"summary,omitempty"`

	Category string `json:"category,omitempty"`
	Person   string `json:"person,omitempty"`
	Tags     TagSet `json:"tags"`

	// Confidence drives promotion eligibility and is the primary
	// non-temporal demotion signal. Range [0,1], defaults to 1.0 on insert.
	Confidence float64 `json:"confidence"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	PromotedAt *time.Time `json:"promoted_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`

	// Relevance-horizon annotation, populated by the external predictor.
	// A nil RelevanceHorizon with a non-empty HorizonCategory means
	// "permanent".
	RelevanceHorizon  *time.Time      `json:"relevance_horizon,omitempty"`
	HorizonReasoning  string          `json:"horizon_reasoning,omitempty"`
	HorizonConfidence float64         `json:"horizon_confidence,omitempty"`
	HorizonCategory   HorizonCategory `json:"horizon_category,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// AccessCount reads the access counter from metadata, if present.
func (c *Chunk) AccessCount() int {
	if c.Metadata == nil {
		return 0
	}
	switch v := c.Metadata["access_count"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Important reports whether metadata flags the chunk as important.
func (c *Chunk) Important() bool {
	if c.Metadata == nil {
		return false
	}
	b, _ := c.Metadata["important"].(bool)
	return b
}

// Expired reports whether the chunk's hard deletion deadline has passed.
func (c *Chunk) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// TagEmbedding is a stored embedding for one (tag, dimension) pair. One tag
// string can carry independent embeddings per dimension — a word may mean
// something different as a place than as a concept.
type TagEmbedding struct {
	Tag       string    `json:"tag"`
	Dimension Dimension `json:"dimension"`
	Vector    []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
