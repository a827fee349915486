package engine

import (
	"errors"
	"fmt"
	"time"
)

// BudgetResource names what a run ran out of.
type BudgetResource string

const (
	BudgetSteps BudgetResource = "steps"
	BudgetTime  BudgetResource = "time"
)

// Budget bounds one run by instructions interpreted and wall-clock time.
// Stacked pickles in one file draw from a single Budget.
//
// Spend is called before every instruction, so a stream that never grows
// the stack (MARK/POP_MARK loops, memo traffic) still runs out.
type Budget struct {
	maxSteps int
	used     int
	clock    Clock
	deadline time.Time
	timeout  time.Duration
}

// NewBudget starts a budget. A zero maxSteps or timeout disables that
// bound.
func NewBudget(maxSteps int, timeout time.Duration, clock Clock) *Budget {
	b := &Budget{maxSteps: maxSteps, clock: clock, timeout: timeout}
	if timeout > 0 {
		b.deadline = clock.Now().Add(timeout)
	}
	return b
}

// Spend charges one instruction.
func (b *Budget) Spend(runID string) error {
	b.used++
	if b.maxSteps > 0 && b.used > b.maxSteps {
		return &BudgetExceededError{RunID: runID, Resource: BudgetSteps, Used: b.used, Limit: b.maxSteps}
	}
	if !b.deadline.IsZero() && b.clock.Now().After(b.deadline) {
		return &BudgetExceededError{RunID: runID, Resource: BudgetTime, Used: b.used, Limit: b.maxSteps, Timeout: b.timeout}
	}
	return nil
}

// Used returns the number of instructions charged so far.
func (b *Budget) Used() int {
	return b.used
}

// BudgetExceededError is returned when a run exhausts its budget.
type BudgetExceededError struct {
	RunID    string
	Resource BudgetResource
	Used     int
	Limit    int
	Timeout  time.Duration
}

func (e *BudgetExceededError) Error() string {
	if e.Resource == BudgetTime {
		return fmt.Sprintf("run %s exceeded %s wall-clock budget after %d steps", e.RunID, e.Timeout, e.Used)
	}
	return fmt.Sprintf("run %s exceeded step budget: %d steps > %d limit", e.RunID, e.Used, e.Limit)
}

// IsBudgetExceeded reports whether err is a budget failure for resource.
func IsBudgetExceeded(err error, resource BudgetResource) bool {
	var be *BudgetExceededError
	return errors.As(err, &be) && be.Resource == resource
}
