package engine

import (
	"sync/atomic"
	"time"
)

// Clock supplies wall-clock time for the per-run timeout. Tests inject a
// fake clock so timeouts are deterministic.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sequence is a monotonic counter. Each run owns one and uses it to issue
// provenance ids for accepted acquisitions.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations),
// though a run only touches its own from one goroutine.
type Sequence struct {
	seq atomic.Uint64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns the next value. The first call returns 1, so 0 never names
// a real acquisition.
func (s *Sequence) Next() uint64 {
	return s.seq.Add(1)
}

// Current returns the last issued value without incrementing.
func (s *Sequence) Current() uint64 {
	return s.seq.Load()
}
