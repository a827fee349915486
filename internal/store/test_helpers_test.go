package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/pickleball/internal/corpus"
	"github.com/roach88/pickleball/internal/ir"
	"github.com/roach88/pickleball/internal/policy"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run record with a fixed start time.
func createTestRun(id, classID string) Run {
	return Run{
		ID:        id,
		ClassID:   classID,
		Root:      "/models/" + classID,
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// okResult builds an ok result whose fragment is extracted from trace.
func okResult(t *testing.T, classID, sample string, trace ir.Trace) corpus.Result {
	t.Helper()
	frag, warnings, err := policy.Extract(classID, trace)
	if err != nil {
		t.Fatalf("Extract() failed: %v", err)
	}
	digest, err := trace.Digest()
	if err != nil {
		t.Fatalf("Digest() failed: %v", err)
	}
	return corpus.Result{
		Sample:   sample,
		Status:   corpus.StatusOK,
		Trace:    trace,
		Fragment: frag,
		Warnings: warnings,
		Digest:   digest,
	}
}

func failedResult(sample, msg string) corpus.Result {
	return corpus.Result{Sample: sample, Status: corpus.StatusFailed, Err: errors.New(msg)}
}
