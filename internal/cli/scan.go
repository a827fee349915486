package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pickleball/internal/corpus"
	"github.com/roach88/pickleball/internal/policy"
)

// DefaultCommonModules are the prefixes scan treats as expected in model
// files.
var DefaultCommonModules = []string{"torch", "transformers", "collections.OrderedDict"}

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Common  []string
	Workers int
	limits  limitFlags
}

// ScanFinding is the scan outcome for one sample.
type ScanFinding struct {
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Uncommon []string `json:"uncommon"`
	Error    string   `json:"error,omitempty"`
}

// ScanResult holds the scan command output.
type ScanResult struct {
	Samples []ScanFinding `json:"samples"`
	Flagged int           `json:"flagged"`
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan <path>...",
		Short: "Report globals outside common modules",
		Long: `Trace model files and report every global that falls outside a set of
common modules. A global matches a common entry when it equals the entry
or continues it with a dot.

This is a reporting aid for triaging models, not a policy decision: use
trace and load to build and enforce allow-lists.

Examples:
  pickleball scan ./downloads
  pickleball scan model.pt --common torch,numpy`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(opts, args, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Common, "common", DefaultCommonModules, "common module prefixes")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent traces (0 means one per CPU)")
	opts.limits.bind(cmd)

	return cmd
}

func runScan(opts *ScanOptions, paths []string, cmd *cobra.Command) error {
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

	tracer := corpus.NewTracer("scan",
		corpus.WithWorkers(opts.Workers),
		corpus.WithLogger(logger),
		corpus.WithEngineOptions(opts.limits.engineOptions(logger)...))
	results, err := tracer.TraceFiles(ctx, files)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, err)
	}

	out := ScanResult{Samples: make([]ScanFinding, 0, len(results))}
	for _, r := range results {
		finding := ScanFinding{Name: r.Sample, Status: string(r.Status), Uncommon: []string{}}
		if r.Err != nil {
			finding.Error = r.Err.Error()
		} else {
			finding.Uncommon = uncommonGlobals(r, opts.Common)
		}
		if len(finding.Uncommon) > 0 {
			out.Flagged++
		}
		out.Samples = append(out.Samples, finding)
	}

	if f.JSON() {
		return f.Success(out)
	}
	for _, s := range out.Samples {
		switch {
		case s.Error != "":
			f.Printf("%s: trace %s: %s\n", s.Name, s.Status, s.Error)
		case len(s.Uncommon) > 0:
			f.Printf("%s: %s\n", s.Name, strings.Join(s.Uncommon, ", "))
		default:
			f.VerboseLog("%s: only common globals", s.Name)
		}
	}
	f.Printf("%d of %d sample(s) use uncommon globals\n", out.Flagged, len(out.Samples))
	return nil
}

// uncommonGlobals returns the sorted distinct globals of r outside common.
func uncommonGlobals(r corpus.Result, common []string) []string {
	var out []string
	for _, name := range policy.NewNameSet(r.Trace.Globals()...).Strings() {
		if !hasCommonPrefix(name, common) {
			out = append(out, name)
		}
	}
	if out == nil {
		return []string{}
	}
	return out
}

func hasCommonPrefix(name string, common []string) bool {
	for _, prefix := range common {
		if name == prefix || strings.HasPrefix(name, prefix+".") {
			return true
		}
	}
	return false
}
