// Package lifecycle runs the periodic maintenance that keeps the memory
// store healthy: expiring dead chunks, demoting stale ones, promoting the
// ones that earned it, and reclaiming disk.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stratamem/strata/internal/memory"
	"github.com/stratamem/strata/internal/store"
)

// Policy is the tuning surface for maintenance. The zero value is not
// usable; start from DefaultPolicy.
type Policy struct {
	// RetentionWindow is how long a short_term chunk may sit untouched
	// before demotion to episodic.
	RetentionWindow time.Duration `yaml:"retention_window"`

	// PromotionConfidence is the confidence at or above which a short_term
	// chunk is promoted to long_term.
	PromotionConfidence float64 `yaml:"promotion_confidence"`

	// ImportantTags promote any chunk carrying one of them.
	ImportantTags []string `yaml:"important_tags"`

	// MinAccessCount promotes a chunk read at least this many times.
	MinAccessCount int `yaml:"min_access_count"`

	// BatchSize caps how many short_term chunks one promotion pass examines.
	BatchSize int `yaml:"batch_size"`
}

func DefaultPolicy() Policy {
	return Policy{
		RetentionWindow:     7 * 24 * time.Hour,
		PromotionConfidence: 0.8,
		MinAccessCount:      3,
		BatchSize:           500,
	}
}

// Maintainer executes lifecycle passes against one store.
type Maintainer struct {
	store  *store.MemoryStore
	policy Policy
}

func New(st *store.MemoryStore, policy Policy) *Maintainer {
	if policy.RetentionWindow <= 0 {
		policy.RetentionWindow = DefaultPolicy().RetentionWindow
	}
	if policy.PromotionConfidence <= 0 {
		policy.PromotionConfidence = DefaultPolicy().PromotionConfidence
	}
	if policy.MinAccessCount <= 0 {
		policy.MinAccessCount = DefaultPolicy().MinAccessCount
	}
	if policy.BatchSize <= 0 {
		policy.BatchSize = DefaultPolicy().BatchSize
	}
	return &Maintainer{store: st, policy: policy}
}

// DecayResult reports one decay pass.
type DecayResult struct {
	Expired int `json:"expired"`
	Demoted int `json:"demoted"`
}

func (r DecayResult) Total() int { return r.Expired + r.Demoted }

// RunDecayCycle sweeps expired chunks, then demotes short_term chunks that
// sat untouched past the retention window down to episodic. Demotion keeps
// the chunk retrievable; only expiry deletes.
func (m *Maintainer) RunDecayCycle(ctx context.Context) (DecayResult, error) {
	var res DecayResult

	expired, err := m.store.DeleteExpired(ctx)
	if err != nil {
		return res, fmt.Errorf("expiry sweep: %w", err)
	}
	res.Expired = expired

	cutoff := time.Now().UTC().Add(-m.policy.RetentionWindow)
	episodic := memory.TierEpisodic
	demoted, err := m.store.Decay(ctx, cutoff, memory.TierShortTerm, &episodic)
	if err != nil {
		return res, fmt.Errorf("demote stale: %w", err)
	}
	res.Demoted = demoted

	log.Info().Int("expired", res.Expired).Int("demoted", res.Demoted).Msg("decay cycle complete")
	return res, nil
}

// BatchResult reports one promotion pass. Per-chunk failures are collected
// rather than aborting the batch.
type BatchResult struct {
	Examined int      `json:"examined"`
	Promoted int      `json:"promoted"`
	Errors   []string `json:"errors,omitempty"`
}

// RunPromotionCycle examines one batch of short_term chunks and promotes
// the eligible ones to long_term.
func (m *Maintainer) RunPromotionCycle(ctx context.Context) (BatchResult, error) {
	var res BatchResult

	chunks, err := m.store.ListByTier(ctx, memory.TierShortTerm, m.policy.BatchSize, 0)
	if err != nil {
		return res, fmt.Errorf("list short_term: %w", err)
	}
	res.Examined = len(chunks)

	for _, c := range chunks {
		if !m.eligible(c) {
			continue
		}
		if err := m.store.Promote(ctx, c.ID, memory.TierLongTerm); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", c.ID, err))
			continue
		}
		res.Promoted++
	}

	log.Info().Int("examined", res.Examined).Int("promoted", res.Promoted).
		Int("errors", len(res.Errors)).Msg("promotion cycle complete")
	return res, nil
}

// eligible applies the promotion criteria: any one suffices.
func (m *Maintainer) eligible(c *memory.Chunk) bool {
	if c.Confidence >= m.policy.PromotionConfidence {
		return true
	}
	if c.Important() {
		return true
	}
	if c.AccessCount() >= m.policy.MinAccessCount {
		return true
	}
	if len(m.policy.ImportantTags) > 0 {
		flat := " " + strings.ToLower(c.Tags.Flatten()) + " "
		for _, tag := range m.policy.ImportantTags {
			if strings.Contains(flat, " "+strings.ToLower(tag)+" ") {
				return true
			}
		}
	}
	return false
}

// VacuumResult reports one vacuum pass. Details is a human-readable summary
// of what the pass reclaimed.
type VacuumResult struct {
	Affected int           `json:"affected"`
	Details  string        `json:"details,omitempty"`
	Duration time.Duration `json:"duration"`
	Errors   []string      `json:"errors,omitempty"`
}

// RunVacuum deletes expired chunks and compacts the database file. Errors
// are captured in the result; the pass itself never aborts halfway.
func (m *Maintainer) RunVacuum(ctx context.Context) VacuumResult {
	start := time.Now()
	var res VacuumResult

	var sizeBefore int64
	if stats, err := m.store.Stats(ctx); err == nil {
		sizeBefore = stats.DBSizeBytes
	}

	expired, err := m.store.DeleteExpired(ctx)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("expiry sweep: %v", err))
	}
	res.Affected = expired

	if err := m.store.Vacuum(ctx); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("vacuum: %v", err))
	}

	res.Duration = time.Since(start)

	if stats, err := m.store.Stats(ctx); err == nil {
		res.Details = fmt.Sprintf("removed %d expired chunks, %d remain, db size %d to %d bytes",
			res.Affected, stats.TotalChunks, sizeBefore, stats.DBSizeBytes)
		log.Info().Int("affected", res.Affected).Int("total_chunks", stats.TotalChunks).
			Int64("db_size_bytes", stats.DBSizeBytes).Dur("duration", res.Duration).
			Msg("vacuum complete")
	}
	return res
}

// RunAll executes a full maintenance pass in the fixed order decay,
// promotion, vacuum, and records it in the audit log. The ordering is a
// contract: promotion must see post-decay tiers, and vacuum must see
// post-promotion deletions.
func (m *Maintainer) RunAll(ctx context.Context) (*store.MaintenanceRun, error) {
	run := store.MaintenanceRun{StartedAt: time.Now().UTC()}

	decay, err := m.RunDecayCycle(ctx)
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("decay: %v", err))
	}
	run.Decayed = decay.Total()

	promo, err := m.RunPromotionCycle(ctx)
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("promotion: %v", err))
	}
	run.Promoted = promo.Promoted
	run.Errors = append(run.Errors, promo.Errors...)

	vac := m.RunVacuum(ctx)
	run.Vacuumed = vac.Affected
	run.Errors = append(run.Errors, vac.Errors...)

	run.FinishedAt = time.Now().UTC()
	if _, err := m.store.RecordMaintenanceRun(ctx, run); err != nil {
		return &run, fmt.Errorf("record run: %w", err)
	}
	return &run, nil
}
