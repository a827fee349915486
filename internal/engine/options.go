package engine

import (
	"log/slog"
	"time"

	"github.com/roach88/pickleball/internal/host"
	"github.com/roach88/pickleball/internal/pickle"
)

// Default limits. Real model pickles stay far below these; hostile streams
// hit them long before exhausting memory or time.
const (
	DefaultMaxSteps          = 10_000_000
	DefaultTimeout           = 60 * time.Second
	DefaultMaxStackDepth     = 1 << 20
	DefaultMaxMarkDepth      = 1 << 16
	DefaultMaxMemoEntries    = 1 << 22
	DefaultMaxContainerItems = 1 << 24
)

// Limits bounds a single run. A zero field disables that bound, except
// MaxOperandSize and MaxIntDigits, which fall back to the decoder defaults.
type Limits struct {
	MaxSteps          int
	Timeout           time.Duration
	MaxStackDepth     int
	MaxMarkDepth      int
	MaxMemoEntries    int
	MaxContainerItems int
	MaxOperandSize    int64
	MaxIntDigits      int
}

// DefaultLimits returns the limits used when no option overrides them.
func DefaultLimits() Limits {
	return Limits{
		MaxSteps:          DefaultMaxSteps,
		Timeout:           DefaultTimeout,
		MaxStackDepth:     DefaultMaxStackDepth,
		MaxMarkDepth:      DefaultMaxMarkDepth,
		MaxMemoEntries:    DefaultMaxMemoEntries,
		MaxContainerItems: DefaultMaxContainerItems,
		MaxOperandSize:    pickle.DefaultMaxOperandSize,
		MaxIntDigits:      pickle.DefaultMaxIntDigits,
	}
}

type config struct {
	limits Limits
	clock  Clock
	runIDs RunIDGenerator
	logger *slog.Logger
	loader host.PersistentLoader
}

func newConfig(opts []Option) *config {
	c := &config{
		limits: DefaultLimits(),
		clock:  SystemClock{},
		runIDs: UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option configures tracing and gate runs.
type Option func(*config)

// WithMaxSteps sets the instruction budget per run.
//
// Default: DefaultMaxSteps. Use a small value to test budget enforcement.
func WithMaxSteps(maxSteps int) Option {
	return func(c *config) {
		c.limits.MaxSteps = maxSteps
	}
}

// WithTimeout sets the wall-clock budget per run.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.limits.Timeout = d
	}
}

// WithLimits replaces all limits.
func WithLimits(l Limits) Option {
	return func(c *config) {
		c.limits = l
	}
}

// WithClock injects the clock used for timeouts.
func WithClock(clock Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithRunIDs injects the run id generator.
func WithRunIDs(gen RunIDGenerator) Option {
	return func(c *config) {
		c.runIDs = gen
	}
}

// WithLogger sets the logger for run start/finish records.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithPersistentLoader sets the loader the gate uses for PERSID and
// BINPERSID. Without one, persistent ids are rejected.
func WithPersistentLoader(l host.PersistentLoader) Option {
	return func(c *config) {
		c.loader = l
	}
}
