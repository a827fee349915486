package engine

import (
	"github.com/roach88/pickleball/internal/ir"
)

// State is the machine state for one stream: operand stack, mark stack and
// memo table. A State is owned by exactly one run and never shared.
type State struct {
	stack []ir.Value
	marks []int // stack heights at each MARK
	memo  map[int64]ir.Value
	proto int

	limits *Limits
}

// NewState creates an empty state bounded by limits.
func NewState(limits *Limits) *State {
	return &State{memo: make(map[int64]ir.Value), limits: limits}
}

// Depth returns the operand stack height.
func (s *State) Depth() int {
	return len(s.stack)
}

// Marks returns the number of open marks.
func (s *State) Marks() int {
	return len(s.marks)
}

// MemoSize returns the number of memo entries.
func (s *State) MemoSize() int {
	return len(s.memo)
}

// base is the stack height below which the current mark segment may not pop.
func (s *State) base() int {
	if len(s.marks) == 0 {
		return 0
	}
	return s.marks[len(s.marks)-1]
}

func (s *State) push(off int64, v ir.Value) error {
	if limit := s.limits.MaxStackDepth; limit > 0 && len(s.stack) >= limit {
		return resourceLimit(off, "stack depth", limit)
	}
	s.stack = append(s.stack, v)
	return nil
}

func (s *State) pop(off int64) (ir.Value, error) {
	if len(s.stack) <= s.base() {
		return nil, malformed(off, "stack underflow")
	}
	v := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return v, nil
}

// popN pops n items and returns them in stack order.
func (s *State) popN(off int64, n int) ([]ir.Value, error) {
	if len(s.stack)-s.base() < n {
		return nil, malformed(off, "stack underflow: need %d items", n)
	}
	cut := len(s.stack) - n
	items := append([]ir.Value(nil), s.stack[cut:]...)
	s.stack = s.stack[:cut]
	return items, nil
}

func (s *State) peek(off int64) (ir.Value, error) {
	if len(s.stack) <= s.base() {
		return nil, malformed(off, "stack underflow")
	}
	return s.stack[len(s.stack)-1], nil
}

func (s *State) mark(off int64) error {
	if limit := s.limits.MaxMarkDepth; limit > 0 && len(s.marks) >= limit {
		return resourceLimit(off, "mark depth", limit)
	}
	s.marks = append(s.marks, len(s.stack))
	return nil
}

// popMark removes the topmost mark and returns the items above it.
func (s *State) popMark(off int64) ([]ir.Value, error) {
	if len(s.marks) == 0 {
		return nil, malformed(off, "no mark on stack")
	}
	at := s.marks[len(s.marks)-1]
	s.marks = s.marks[:len(s.marks)-1]
	items := append([]ir.Value(nil), s.stack[at:]...)
	s.stack = s.stack[:at]
	return items, nil
}

// discard implements POP: drop the top item, or the topmost mark when the
// current segment is empty.
func (s *State) discard(off int64) error {
	if len(s.stack) > s.base() {
		s.stack = s.stack[:len(s.stack)-1]
		return nil
	}
	if len(s.marks) > 0 {
		s.marks = s.marks[:len(s.marks)-1]
		return nil
	}
	return malformed(off, "stack underflow")
}

func (s *State) memoPut(off int64, id int64, v ir.Value) error {
	if id < 0 {
		return malformed(off, "negative memo id %d", id)
	}
	if _, exists := s.memo[id]; !exists {
		if limit := s.limits.MaxMemoEntries; limit > 0 && len(s.memo) >= limit {
			return resourceLimit(off, "memo entries", limit)
		}
	}
	s.memo[id] = v
	return nil
}

func (s *State) memoGet(off int64, id int64) (ir.Value, error) {
	v, ok := s.memo[id]
	if !ok {
		return nil, malformed(off, "memo id %d not found", id)
	}
	return v, nil
}

func (s *State) checkItems(off int64, n int) error {
	if limit := s.limits.MaxContainerItems; limit > 0 && n > limit {
		return resourceLimit(off, "container items", limit)
	}
	return nil
}
