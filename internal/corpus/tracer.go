package corpus

import (
	"context"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/pickleball/internal/engine"
	"github.com/roach88/pickleball/internal/ir"
	"github.com/roach88/pickleball/internal/policy"
)

// Status is the outcome of tracing one sample.
type Status string

const (
	// StatusOK means the sample traced and contributed a fragment.
	StatusOK Status = "ok"
	// StatusSkipped means the sample hit a step, time or size bound.
	StatusSkipped Status = "skipped"
	// StatusFailed means the sample could not be read or is malformed.
	StatusFailed Status = "failed"
)

// Classify maps a trace error to a sample status.
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case engine.IsTimeout(err), engine.IsResourceLimit(err):
		return StatusSkipped
	default:
		return StatusFailed
	}
}

// Result is the outcome for one sample.
type Result struct {
	Sample   string
	Status   Status
	Trace    ir.Trace
	Fragment policy.Policy
	Warnings []policy.Warning
	Digest   string
	Err      error
}

// Tracer traces samples in parallel for one class id.
type Tracer struct {
	classID    string
	workers    int
	logger     *slog.Logger
	openOpts   []OpenOption
	engineOpts []engine.Option
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithWorkers sets the number of concurrent traces. Values <= 0 mean
// runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(t *Tracer) {
		t.workers = n
	}
}

// WithLogger sets the logger for skipped and failed samples.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracer) {
		t.logger = l
	}
}

// WithEngineOptions passes options to every trace run.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(t *Tracer) {
		t.engineOpts = append(t.engineOpts, opts...)
	}
}

// WithOpenOptions passes options to Open.
func WithOpenOptions(opts ...OpenOption) Option {
	return func(t *Tracer) {
		t.openOpts = append(t.openOpts, opts...)
	}
}

// NewTracer creates a tracer whose fragments are attributed to classID.
func NewTracer(classID string, opts ...Option) *Tracer {
	t := &Tracer{classID: classID, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	if t.workers <= 0 {
		t.workers = runtime.NumCPU()
	}
	return t
}

// TraceFiles opens and traces every file. A file that cannot be opened
// yields one failed result. Results follow the order of paths, then the
// order of samples within each file.
func (t *Tracer) TraceFiles(ctx context.Context, paths []string) ([]Result, error) {
	var (
		samples []Sample
		opened  []Result
		slots   []int
	)
	for _, p := range paths {
		ss, err := Open(p, t.openOpts...)
		if err != nil {
			t.logger.Warn("model file unreadable", slog.String("path", p), slog.Any("error", err))
			opened = append(opened, Result{Sample: p, Status: StatusFailed, Err: err})
			slots = append(slots, -1)
			continue
		}
		for _, s := range ss {
			slots = append(slots, len(samples))
			samples = append(samples, s)
		}
	}

	traced, err := t.TraceSamples(ctx, samples)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(slots))
	failed := 0
	for _, slot := range slots {
		if slot < 0 {
			out = append(out, opened[failed])
			failed++
			continue
		}
		out = append(out, traced[slot])
	}
	return out, nil
}

// TraceSamples traces samples on a bounded pool. Per-sample errors are
// recorded in the results; the returned error is non-nil only when ctx is
// done.
func (t *Tracer) TraceSamples(ctx context.Context, samples []Sample) ([]Result, error) {
	results := make([]Result, len(samples))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for i, s := range samples {
		g.Go(func() error {
			results[i] = t.traceOne(gctx, s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (t *Tracer) traceOne(ctx context.Context, s Sample) Result {
	res := Result{Sample: s.Name()}

	var tr ir.Trace
	var err error
	if s.Stacked {
		tr, err = engine.TraceStacked(ctx, s.Data, t.engineOpts...)
	} else {
		tr, err = engine.Trace(ctx, s.Data, t.engineOpts...)
	}
	res.Status = Classify(err)
	if err != nil {
		res.Err = err
		t.logger.Warn("sample excluded",
			slog.String("sample", res.Sample),
			slog.String("status", string(res.Status)),
			slog.Any("error", err))
		return res
	}

	res.Trace = tr
	res.Fragment, res.Warnings, err = policy.Extract(t.classID, tr)
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res
	}
	for _, w := range res.Warnings {
		t.logger.Debug("reduce attribution", slog.String("sample", res.Sample), slog.String("warning", w.String()))
	}
	res.Digest, err = tr.Digest()
	if err != nil {
		res.Status, res.Err = StatusFailed, err
	}
	return res
}

// Aggregate unions the fragments of every successful result.
func Aggregate(results []Result) policy.Policy {
	var frags []policy.Policy
	for _, r := range results {
		if r.Status == StatusOK {
			frags = append(frags, r.Fragment)
		}
	}
	return policy.Union(frags...)
}

// Counts tallies results by status.
func Counts(results []Result) map[Status]int {
	out := map[Status]int{StatusOK: 0, StatusSkipped: 0, StatusFailed: 0}
	for _, r := range results {
		out[r.Status]++
	}
	return out
}
