package cli

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pickleball/internal/corpus"
	"github.com/roach88/pickleball/internal/store"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database string
	Samples  bool
	Digest   string
}

// RunSummary is one stored run.
type RunSummary struct {
	ID           string         `json:"id"`
	Class        string         `json:"class"`
	Root         string         `json:"root"`
	StartedAt    string         `json:"started_at"`
	Finished     bool           `json:"finished"`
	PolicyDigest string         `json:"policy_digest,omitempty"`
	Counts       map[string]int `json:"counts"`
}

// RunReport is the detailed report for one run.
type RunReport struct {
	RunSummary
	Policy  json.RawMessage `json:"policy"`
	Samples []StoredSample  `json:"samples,omitempty"`
}

// StoredSample is one stored sample.
type StoredSample struct {
	RunID  string `json:"run_id"`
	Seq    int    `json:"seq"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Digest string `json:"digest,omitempty"`
	Error  string `json:"error,omitempty"`
	Events int    `json:"events"`
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Summarize stored trace runs",
		Long: `Summarize runs recorded by trace --db or eval --db.

Without a run id, lists every run in id order (run ids sort by creation
time). With a run id, prints the run's status counts and its unioned
policy; a run that never finished has its policy rebuilt from the stored
samples. --digest lists every stored sample whose trace has that digest.

Examples:
  pickleball report --db ./traces.db
  pickleball report --db ./traces.db 01890a5d-ac96-774b-bcce-b302099a8057 --samples
  pickleball report --db ./traces.db --digest sha256:...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runReport(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.Samples, "samples", false, "list the run's samples")
	cmd.Flags().StringVar(&opts.Digest, "digest", "", "list samples with this trace digest")

	return cmd
}

func runReport(opts *ReportOptions, runID string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err)
	}
	defer st.Close()

	switch {
	case opts.Digest != "":
		return reportDigest(ctx, f, st, opts.Digest)
	case runID == "":
		return reportRuns(ctx, f, st)
	default:
		return reportRun(ctx, f, st, runID, opts.Samples)
	}
}

func reportRuns(ctx context.Context, f *OutputFormatter, st *store.Store) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err)
	}

	out := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		s, err := summarizeRun(ctx, st, r)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, err)
		}
		out = append(out, s)
	}

	if f.JSON() {
		return f.Success(out)
	}
	if len(out) == 0 {
		f.Printf("No runs stored.\n")
		return nil
	}
	for _, s := range out {
		state := "finished"
		if !s.Finished {
			state = "unfinished"
		}
		f.Printf("%s  %s  %s  ok %d, skipped %d, failed %d  %s\n", s.ID, s.StartedAt, s.Class,
			s.Counts[string(corpus.StatusOK)], s.Counts[string(corpus.StatusSkipped)], s.Counts[string(corpus.StatusFailed)], state)
	}
	return nil
}

func reportRun(ctx context.Context, f *OutputFormatter, st *store.Store, runID string, withSamples bool) error {
	run, err := st.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, err)
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err)
	}
	summary, err := summarizeRun(ctx, st, run)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err)
	}

	p := run.Policy
	if !run.Finished() {
		p, err = st.RebuildPolicy(ctx, runID)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, err)
		}
	}
	rendered, err := policyJSON(p)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, err)
	}

	report := RunReport{RunSummary: summary, Policy: rendered}
	if withSamples {
		records, err := st.ReadSamples(ctx, runID)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, err)
		}
		report.Samples = storedSamples(records)
	}

	if f.JSON() {
		return f.Success(report)
	}
	f.Printf("Run:      %s\n", summary.ID)
	f.Printf("Class:    %s\n", summary.Class)
	f.Printf("Root:     %s\n", summary.Root)
	f.Printf("Started:  %s\n", summary.StartedAt)
	f.Printf("Samples:  ok %d, skipped %d, failed %d\n",
		summary.Counts[string(corpus.StatusOK)], summary.Counts[string(corpus.StatusSkipped)], summary.Counts[string(corpus.StatusFailed)])
	if !summary.Finished {
		f.Printf("Policy (rebuilt from samples):\n")
	} else {
		f.Printf("Policy (%s):\n", summary.PolicyDigest)
	}
	f.Printf("%s", rendered)
	if withSamples {
		f.Printf("\n")
		writeStoredSamples(f, report.Samples)
	}
	return nil
}

func reportDigest(ctx context.Context, f *OutputFormatter, st *store.Store, digest string) error {
	records, err := st.SamplesByDigest(ctx, digest)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err)
	}
	samples := storedSamples(records)
	if f.JSON() {
		return f.Success(samples)
	}
	if len(samples) == 0 {
		f.Printf("No samples with digest %s\n", digest)
		return nil
	}
	writeStoredSamples(f, samples)
	return nil
}

func summarizeRun(ctx context.Context, st *store.Store, r store.Run) (RunSummary, error) {
	counts, err := st.Counts(ctx, r.ID)
	if err != nil {
		return RunSummary{}, err
	}
	return RunSummary{
		ID:           r.ID,
		Class:        r.ClassID,
		Root:         r.Root,
		StartedAt:    r.StartedAt.UTC().Format(time.RFC3339),
		Finished:     r.Finished(),
		PolicyDigest: r.PolicyDigest,
		Counts:       countsJSON(counts),
	}, nil
}

func storedSamples(records []store.SampleRecord) []StoredSample {
	out := make([]StoredSample, 0, len(records))
	for _, rec := range records {
		out = append(out, StoredSample{
			RunID:  rec.RunID,
			Seq:    rec.Seq,
			Name:   rec.Name,
			Status: string(rec.Status),
			Digest: rec.Digest,
			Error:  rec.Error,
			Events: len(rec.Trace),
		})
	}
	return out
}

func writeStoredSamples(f *OutputFormatter, samples []StoredSample) {
	for _, s := range samples {
		line := s.Status
		if s.Error != "" {
			line += ": " + s.Error
		} else if s.Digest != "" {
			line += " " + s.Digest
		}
		f.Printf("%4d  %s  %s\n", s.Seq, s.Name, line)
	}
}
