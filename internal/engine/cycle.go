package engine

import "github.com/roach88/pickleball/internal/ir"

// CycleDetector tracks immutable containers that are currently being
// realized, to reject self-referential tuples and frozensets.
//
// Lists, dicts and sets are cached before their items are realized, so a
// list that contains itself realizes to a host list that contains itself.
// Tuples and frozensets cannot be built before their items, so a tuple that
// reaches itself through its items can never be constructed:
//
//	t = (l,) where l = [t]   ->  realize(t) -> realize(l) -> realize(t) <- CYCLE
//
// The detector holds per-run state only; each realization pass owns one.
type CycleDetector struct {
	active map[*ir.Container]bool
}

// NewCycleDetector creates a new cycle detector.
func NewCycleDetector() *CycleDetector {
	return &CycleDetector{active: make(map[*ir.Container]bool)}
}

// WouldCycle reports whether c is already being realized.
func (c *CycleDetector) WouldCycle(ctr *ir.Container) bool {
	return c.active[ctr]
}

// Record marks c as being realized.
func (c *CycleDetector) Record(ctr *ir.Container) {
	c.active[ctr] = true
}

// Clear marks c as finished.
func (c *CycleDetector) Clear(ctr *ir.Container) {
	delete(c.active, ctr)
}

// Size returns the realization depth of immutable containers.
func (c *CycleDetector) Size() int {
	return len(c.active)
}
