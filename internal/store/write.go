package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/pickleball/internal/corpus"
	"github.com/roach88/pickleball/internal/policy"
)

// CreateRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("create run: empty run id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, class_id, root, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.ClassID,
		run.Root,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// WriteResults inserts one sample row per result, numbered from zero in
// slice order. All rows are written in a single transaction.
//
// Note: The run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteResults(ctx context.Context, runID string, results []corpus.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (run_id, seq, name, status, error, trace_digest, events)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	defer stmt.Close()

	for i, r := range results {
		events, err := marshalEvents(r.Trace)
		if err != nil {
			return fmt.Errorf("write results: sample %s: %w", r.Sample, err)
		}
		var errText string
		if r.Err != nil {
			errText = r.Err.Error()
		}
		if _, err := stmt.ExecContext(ctx, runID, i, r.Sample, string(r.Status), errText, r.Digest, events); err != nil {
			return fmt.Errorf("write results: sample %s: %w", r.Sample, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// FinishRun records the unioned policy of a run.
// Returns ErrRunNotFound if the run does not exist.
func (s *Store) FinishRun(ctx context.Context, runID string, p policy.Policy) error {
	text, digest, err := marshalPolicy(p)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET policy = ?, policy_digest = ? WHERE id = ?
	`, text, digest, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}
