package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pickleball/internal/corpus"
	"github.com/roach88/pickleball/internal/engine"
	"github.com/roach88/pickleball/internal/manifest"
	"github.com/roach88/pickleball/internal/policy"
	"github.com/roach88/pickleball/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Class    string
	Output   string
	Flat     bool
	Database string
	Workers  int
	limits   limitFlags
}

// SampleSummary is one sample line of a trace result.
type SampleSummary struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// TraceResult holds the trace command output.
type TraceResult struct {
	RunID   string          `json:"run_id,omitempty"`
	Class   string          `json:"class"`
	Files   int             `json:"files"`
	Counts  map[string]int  `json:"counts"`
	Samples []SampleSummary `json:"samples"`
	Policy  json.RawMessage `json:"policy"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <path>...",
		Short: "Trace model files into a baseline policy",
		Long: `Trace every model file under the given paths and union the globals and
reduces they use into a policy for one class.

Directories are searched for pytorch_model.bin, *.pt, *.pth, *.pkl,
*.pickle and *.bin. Zip archives contribute every */data.pkl member.
Samples that exceed a step, time or size bound are skipped; malformed
samples fail. Neither contributes to the policy.

Without --output the policy is written to stdout.

Exit codes:
  0 - At least one sample traced
  1 - No sample traced successfully
  2 - Command error (invalid paths, store errors, etc.)

Examples:
  pickleball trace ./models/flair --class flair.models.SequenceTagger -o flair.json
  pickleball trace ./models --db ./traces.db --workers 8
  pickleball trace model.pt --flat`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Class, "class", manifest.DefaultClass, "class id the policy is attributed to")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "policy file to write")
	cmd.Flags().BoolVar(&opts.Flat, "flat", false, "write a flat {globals, reduces} trace instead of a policy")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite store recording every sample")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent traces (0 means one per CPU)")
	opts.limits.bind(cmd)

	return cmd
}

func runTrace(opts *TraceOptions, paths []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	logger := opts.Logger()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	files, err := collectModels(paths)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, err)
	}
	if len(files) == 0 {
		return f.Fail(ExitCommandError, ErrCodeNoModels,
			fmt.Errorf("no model files under %s", strings.Join(paths, ", ")))
	}
	f.VerboseLog("Tracing %d model file(s) for %s", len(files), opts.Class)

	tracer := corpus.NewTracer(opts.Class,
		corpus.WithWorkers(opts.Workers),
		corpus.WithLogger(logger),
		corpus.WithEngineOptions(opts.limits.engineOptions(logger)...))
	results, err := tracer.TraceFiles(ctx, files)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	p := corpus.Aggregate(results)
	counts := corpus.Counts(results)

	var runID string
	if opts.Database != "" {
		run := store.Run{
			ID:        engine.UUIDv7Generator{}.Generate(),
			ClassID:   opts.Class,
			Root:      strings.Join(paths, string(os.PathListSeparator)),
			StartedAt: time.Now(),
		}
		if err := recordRun(ctx, opts.Database, run, results, p); err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, err)
		}
		runID = run.ID
		logger.Info("run stored", "run_id", runID, "db", opts.Database)
	}

	data, err := renderPolicy(p, opts.Class, opts.Flat)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return f.Fail(ExitCommandError, ErrCodeWriteFailed, err)
		}
	}

	if f.JSON() {
		result := TraceResult{
			RunID:   runID,
			Class:   opts.Class,
			Files:   len(files),
			Counts:  countsJSON(counts),
			Samples: summarize(results),
			Policy:  json.RawMessage(data),
		}
		if err := f.Success(result); err != nil {
			return err
		}
	} else if opts.Output == "" {
		if _, err := f.Writer.Write(data); err != nil {
			return err
		}
	} else {
		f.Printf("Traced %d sample(s) from %d file(s): %d ok, %d skipped, %d failed\n",
			len(results), len(files), counts[corpus.StatusOK], counts[corpus.StatusSkipped], counts[corpus.StatusFailed])
		f.Printf("Wrote policy for %s to %s\n", opts.Class, opts.Output)
		if runID != "" {
			f.Printf("Run %s stored in %s\n", runID, opts.Database)
		}
	}

	if counts[corpus.StatusOK] == 0 {
		return NewExitError(ExitFailure, ErrCodeTrace+": no sample traced successfully")
	}
	return nil
}

// renderPolicy renders p in the policy file format, or the entry for
// classID in the flat format.
func renderPolicy(p policy.Policy, classID string, flat bool) ([]byte, error) {
	if !flat {
		return policy.Marshal(p)
	}
	entry, _ := p.Entry(classID)
	return policy.MarshalEntry(entry)
}

func summarize(results []corpus.Result) []SampleSummary {
	out := make([]SampleSummary, 0, len(results))
	for _, r := range results {
		s := SampleSummary{Name: r.Sample, Status: string(r.Status)}
		if r.Err != nil {
			s.Error = r.Err.Error()
		}
		out = append(out, s)
	}
	return out
}

// recordRun stores a run, its samples and its policy.
func recordRun(ctx context.Context, path string, run store.Run, results []corpus.Result, p policy.Policy) (err error) {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, st.Close())
	}()

	return storeRun(ctx, st, run, results, p)
}
