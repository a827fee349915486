package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/pickleball/internal/corpus"
	"github.com/roach88/pickleball/internal/ir"
	"github.com/roach88/pickleball/internal/policy"
)

// ErrRunNotFound is returned when a run id has no record.
var ErrRunNotFound = errors.New("run not found")

// Run is one corpus tracing run.
// Policy is zero and PolicyDigest empty until FinishRun is called.
type Run struct {
	ID           string
	ClassID      string
	Root         string
	StartedAt    time.Time
	Policy       policy.Policy
	PolicyDigest string
}

// Finished reports whether the run's policy has been recorded.
func (r Run) Finished() bool {
	return r.PolicyDigest != ""
}

// SampleRecord is one stored sample outcome.
type SampleRecord struct {
	RunID  string
	Seq    int
	Name   string
	Status corpus.Status
	Error  string
	Digest string
	Trace  ir.Trace
}

// ReadRun returns a run by id.
// Returns ErrRunNotFound if no run has that id.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, class_id, root, started_at, policy, policy_digest
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns all runs in creation order.
//
// Returns an empty slice (not nil) if the store has no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, class_id, root, started_at, policy, policy_digest
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadSamples returns the samples of a run ordered by seq.
//
// Returns an empty slice (not nil) if the run has no samples.
func (s *Store) ReadSamples(ctx context.Context, runID string) ([]SampleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, name, status, error, trace_digest, events
		FROM samples
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	return collectSamples(rows)
}

// SamplesByDigest returns every stored sample, across runs, whose trace has
// the given digest. Ordered by run id then seq.
func (s *Store) SamplesByDigest(ctx context.Context, digest string) ([]SampleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, name, status, error, trace_digest, events
		FROM samples
		WHERE trace_digest = ?
		ORDER BY run_id COLLATE BINARY ASC, seq ASC
	`, digest)
	if err != nil {
		return nil, fmt.Errorf("query samples by digest: %w", err)
	}
	return collectSamples(rows)
}

// Counts returns the number of samples per status for a run.
func (s *Store) Counts(ctx context.Context, runID string) (map[corpus.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM samples
		WHERE run_id = ?
		GROUP BY status
		ORDER BY status ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[corpus.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan counts: %w", err)
		}
		counts[corpus.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// RebuildPolicy re-extracts a run's policy from its stored traces: the
// union of the fragments of every ok sample. It matches the policy that
// FinishRun recorded when the stored traces are intact.
func (s *Store) RebuildPolicy(ctx context.Context, runID string) (policy.Policy, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return policy.Policy{}, err
	}
	samples, err := s.ReadSamples(ctx, runID)
	if err != nil {
		return policy.Policy{}, err
	}

	fragments := make([]policy.Policy, 0, len(samples))
	for _, sr := range samples {
		if sr.Status != corpus.StatusOK {
			continue
		}
		frag, _, err := policy.Extract(run.ClassID, sr.Trace)
		if err != nil {
			return policy.Policy{}, fmt.Errorf("rebuild policy: sample %s: %w", sr.Name, err)
		}
		fragments = append(fragments, frag)
	}
	return policy.Union(fragments...), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var started string
	var text, digest sql.NullString
	if err := row.Scan(&run.ID, &run.ClassID, &run.Root, &started, &text, &digest); err != nil {
		return Run{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at for run %s: %w", run.ID, err)
	}
	run.StartedAt = t

	if text.Valid {
		p, err := unmarshalPolicy(text.String)
		if err != nil {
			return Run{}, fmt.Errorf("run %s: %w", run.ID, err)
		}
		run.Policy = p
		run.PolicyDigest = digest.String
	}
	return run, nil
}

func collectSamples(rows *sql.Rows) ([]SampleRecord, error) {
	defer rows.Close()

	out := []SampleRecord{}
	for rows.Next() {
		var sr SampleRecord
		var status string
		var events []byte
		if err := rows.Scan(&sr.RunID, &sr.Seq, &sr.Name, &status, &sr.Error, &sr.Digest, &events); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		sr.Status = corpus.Status(status)
		t, err := unmarshalEvents(events)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", sr.Name, err)
		}
		sr.Trace = t
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return out, nil
}
