package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/pickleball/internal/engine"
	"github.com/roach88/pickleball/internal/host"
	"github.com/roach88/pickleball/internal/policy"
	"github.com/roach88/pickleball/internal/testutil"
)

// Harness runs scenarios against the tracer and the enforcement gate.
//
// Every run gets a fresh host registry (testutil.Registry) whose os
// stand-in records the dangerous functions that execute, so scenarios can
// assert that a rejected stream ran nothing.
type Harness struct {
	logger     *slog.Logger
	engineOpts []engine.Option
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger passed to the engine. Defaults to discarding.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// WithEngineOptions appends engine options to every trace and load.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(h *Harness) {
		h.engineOpts = append(h.engineOpts, opts...)
	}
}

// New creates a harness.
func New(opts ...Option) *Harness {
	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default harness.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return New().Run(ctx, scenario)
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Assemble the stream from the scenario's steps
//  2. Trace it and extract the class fragment
//  3. If the scenario has a policy, load it through the gate
//  4. Evaluate assertions
//
// Trace and gate failures are recorded in the result, not returned; the
// error return is reserved for scenarios that cannot run at all.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	data := scenario.Assemble()
	result := NewResult()
	opts := append([]engine.Option{engine.WithLogger(h.logger)}, h.engineOpts...)

	result.Trace, result.TraceErr = engine.Trace(ctx, data, opts...)
	if result.TraceErr == nil {
		frag, _, err := policy.Extract(scenario.Class, result.Trace)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
		result.Fragment = frag
	}

	if scenario.Policy != nil {
		p, err := policy.Fragment(scenario.Class, policy.Entry{
			Globals: policy.Strings(scenario.Policy.Globals...),
			Reduces: policy.Strings(scenario.Policy.Reduces...),
		})
		if err != nil {
			return nil, fmt.Errorf("scenario %s: policy: %w", scenario.Name, err)
		}

		var calls []string
		gateOpts := append(opts, engine.WithPersistentLoader(host.TorchPersistentLoader()))
		gate := engine.NewGate(testutil.Registry(&calls), gateOpts...)
		_, result.GateErr = gate.Load(ctx, data, p, scenario.Class)
		result.Gated = true
		if calls != nil {
			result.Calls = calls
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	h.logger.Debug("scenario finished",
		slog.String("scenario", scenario.Name),
		slog.Bool("pass", result.Pass),
		slog.Int("events", len(result.Trace)))
	return result, nil
}
