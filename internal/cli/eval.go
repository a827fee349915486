package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pickleball/internal/corpus"
	"github.com/roach88/pickleball/internal/engine"
	"github.com/roach88/pickleball/internal/manifest"
	"github.com/roach88/pickleball/internal/policy"
	"github.com/roach88/pickleball/internal/store"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Only          []string
	ListLibraries bool
	Database      string
	Workers       int
	limits        limitFlags
}

// LibraryEval is the evaluation outcome for one library.
type LibraryEval struct {
	Name     string              `json:"name"`
	Class    string              `json:"class"`
	RunID    string              `json:"run_id,omitempty"`
	Counts   map[string]int      `json:"counts"`
	Baseline string              `json:"baseline,omitempty"`
	Report   *policy.ClassReport `json:"report,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <manifest.toml>",
		Short: "Evaluate inferred policies against traced baselines",
		Long: `For each library in an evaluation manifest, trace its model directory
into a baseline policy, write the baseline, and score the library's
inferred policy against it.

Exit codes:
  0 - Every selected library was evaluated
  1 - A library could not be evaluated (no models, missing policy, etc.)
  2 - Command error (unreadable manifest, unknown library, etc.)

Examples:
  pickleball eval evaluation/manifest.toml
  pickleball eval manifest.toml --only flair,yolov5 --format json
  pickleball eval manifest.toml --list-libraries`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Only, "only", nil, "evaluate only these libraries")
	cmd.Flags().BoolVar(&opts.ListLibraries, "list-libraries", false, "list the manifest's libraries and exit")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite store recording every traced sample")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent traces (overrides system.workers)")
	opts.limits.bind(cmd)

	return cmd
}

func runEval(opts *EvalOptions, manifestPath string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidManifest, err)
	}
	libs, err := m.Select(opts.Only...)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidManifest, err)
	}

	if opts.ListLibraries {
		return listLibraries(f, libs)
	}

	workers := m.System.Workers
	if opts.Workers > 0 {
		workers = opts.Workers
	}

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, err)
		}
		defer st.Close()
	}

	evals := make([]LibraryEval, 0, len(libs))
	failed := 0
	for _, lib := range libs {
		ev, err := evalLibrary(ctx, opts, m, lib, workers, st)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return f.Fail(ExitCommandError, ErrCodeGeneric, err)
			}
			ev.Error = err.Error()
			failed++
			opts.Logger().Warn("library not evaluated", "library", lib.Name, "error", err)
		}
		evals = append(evals, ev)
	}

	if f.JSON() {
		if err := f.Success(map[string]any{"libraries": evals}); err != nil {
			return err
		}
	} else {
		for _, ev := range evals {
			writeLibraryEval(f, ev)
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %d of %d librar(ies) not evaluated", ErrCodeTrace, failed, len(libs)))
	}
	return nil
}

func listLibraries(f *OutputFormatter, libs []manifest.Library) error {
	if f.JSON() {
		type entry struct {
			Name   string `json:"name"`
			Class  string `json:"class"`
			Models string `json:"models"`
			Policy string `json:"policy"`
		}
		out := make([]entry, 0, len(libs))
		for _, lib := range libs {
			out = append(out, entry{Name: lib.Name, Class: lib.ModelClass, Models: lib.ModelsDir, Policy: lib.PolicyPath})
		}
		return f.Success(out)
	}
	for _, lib := range libs {
		f.Printf("%s\t%s\n", lib.Name, lib.ModelClass)
	}
	return nil
}

// evalLibrary traces one library into a baseline and scores its inferred
// policy. The returned LibraryEval is filled as far as evaluation got.
func evalLibrary(ctx context.Context, opts *EvalOptions, m *manifest.Manifest, lib manifest.Library, workers int, st *store.Store) (LibraryEval, error) {
	logger := opts.Logger().With("library", lib.Name)
	ev := LibraryEval{Name: lib.Name, Class: lib.ModelClass, Counts: countsJSON(nil)}

	found, err := corpus.Discover(lib.ModelsDir)
	if err != nil {
		return ev, fmt.Errorf("scan models: %w", err)
	}
	var files []string
	for _, p := range found {
		if !lib.Ignored(p) {
			files = append(files, p)
		}
	}
	if len(files) == 0 {
		return ev, fmt.Errorf("no model files in %s", lib.ModelsDir)
	}

	started := time.Now()
	tracer := corpus.NewTracer(lib.ModelClass,
		corpus.WithWorkers(workers),
		corpus.WithLogger(logger),
		corpus.WithEngineOptions(opts.limits.engineOptions(logger)...))
	results, err := tracer.TraceFiles(ctx, files)
	if err != nil {
		return ev, err
	}
	counts := corpus.Counts(results)
	ev.Counts = countsJSON(counts)
	baseline := corpus.Aggregate(results)
	logger.Info("library traced", "files", len(files), "ok", counts[corpus.StatusOK])

	if st != nil {
		run := store.Run{ID: engine.UUIDv7Generator{}.Generate(), ClassID: lib.ModelClass, Root: lib.ModelsDir, StartedAt: started}
		if err := storeRun(ctx, st, run, results, baseline); err != nil {
			return ev, fmt.Errorf("store: %w", err)
		}
		ev.RunID = run.ID
	}

	if counts[corpus.StatusOK] == 0 {
		return ev, errors.New("no sample traced successfully")
	}

	ev.Baseline = m.BaselinePath(lib.Name)
	if err := os.MkdirAll(filepath.Dir(ev.Baseline), 0o755); err != nil {
		return ev, err
	}
	if err := policy.WriteFile(ev.Baseline, baseline); err != nil {
		return ev, fmt.Errorf("write baseline: %w", err)
	}

	inferred, err := policy.ReadFile(lib.PolicyPath, lib.ModelClass)
	if err != nil {
		return ev, fmt.Errorf("inferred policy: %w", err)
	}
	b, _ := baseline.Entry(lib.ModelClass)
	c, _ := inferred.Entry(lib.ModelClass)
	report := policy.CompareEntries(b, c).Report()
	ev.Report = &report
	return ev, nil
}

func storeRun(ctx context.Context, st *store.Store, run store.Run, results []corpus.Result, p policy.Policy) error {
	if err := st.CreateRun(ctx, run); err != nil {
		return err
	}
	if err := st.WriteResults(ctx, run.ID, results); err != nil {
		return err
	}
	return st.FinishRun(ctx, run.ID, p)
}

func writeLibraryEval(f *OutputFormatter, ev LibraryEval) {
	f.Printf("%s (%s): %d ok, %d skipped, %d failed\n", ev.Name, ev.Class,
		ev.Counts[string(corpus.StatusOK)], ev.Counts[string(corpus.StatusSkipped)], ev.Counts[string(corpus.StatusFailed)])
	if ev.Error != "" {
		f.Printf("  error: %s\n", ev.Error)
		return
	}
	for _, line := range []struct {
		category policy.Category
		lines    policy.Lines
	}{
		{policy.CategoryGlobals, ev.Report.GlobalLines},
		{policy.CategoryReduces, ev.Report.ReduceLines},
	} {
		l := line.lines
		f.Printf("  %-8s precision %.3f  recall %.3f  f1 %.3f  (both %d, baseline only %d, inferred only %d)\n",
			line.category, l.Precision, l.Recall, l.F1, l.InBoth, l.InBaselineNotInferred, l.InInferredNotBaseline)
	}
}
