package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaintenanceRun is one audit record of a lifecycle pass.
type MaintenanceRun struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Decayed    int       `json:"decayed"`
	Promoted   int       `json:"promoted"`
	Vacuumed   int       `json:"vacuumed"`
	Errors     []string  `json:"errors,omitempty"`
}

// RecordMaintenanceRun appends a run to the audit log and returns its id.
func (s *MemoryStore) RecordMaintenanceRun(ctx context.Context, run MaintenanceRun) (string, error) {
	if err := s.guard(); err != nil {
		return "", err
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	var errText any
	if len(run.Errors) > 0 {
		errText = strings.Join(run.Errors, "\n")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO maintenance_runs (id, started_at, finished_at, decayed, promoted, vacuumed, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		run.Decayed, run.Promoted, run.Vacuumed, errText)
	if err != nil {
		return "", fmt.Errorf("record maintenance run: %w", err)
	}
	return run.ID, nil
}

// LastMaintenanceRun returns the most recent audit record, or nil when no
// maintenance has run yet.
func (s *MemoryStore) LastMaintenanceRun(ctx context.Context) (*MaintenanceRun, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, decayed, promoted, vacuumed, errors
		FROM maintenance_runs ORDER BY started_at DESC, id DESC LIMIT 1
	`)

	var run MaintenanceRun
	var started, finished int64
	var errText sql.NullString
	err := row.Scan(&run.ID, &started, &finished, &run.Decayed, &run.Promoted, &run.Vacuumed, &errText)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last maintenance run: %w", err)
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	run.FinishedAt = time.UnixMilli(finished).UTC()
	if errText.Valid && errText.String != "" {
		run.Errors = strings.Split(errText.String, "\n")
	}
	return &run, nil
}
