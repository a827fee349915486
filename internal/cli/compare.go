package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pickleball/internal/manifest"
	"github.com/roach88/pickleball/internal/policy"
)

// CompareOptions holds flags for the compare command.
type CompareOptions struct {
	*RootOptions
	Class string
}

// NewCompareCommand creates the compare command.
func NewCompareCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompareOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compare <baseline> <inferred>",
		Short: "Score an inferred policy against a baseline",
		Long: `Compare an inferred policy against a baseline, per class and per
category, reporting precision, recall and F1.

A name only in the baseline is a false negative: loading a benign model
would fail. A name only in the inferred policy is a false positive: the
policy allows more than the models need. Classes present in only one
file are compared against an empty entry.

Flat {globals, reduces} files are attributed to --class.

Examples:
  pickleball compare baselines/flair.json policies/flair.json
  pickleball compare traced.json inferred.json --format json
  pickleball compare traced.json inferred.json -v`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Class, "class", manifest.DefaultClass, "class id for flat files")

	return cmd
}

func runCompare(opts *CompareOptions, baselinePath, inferredPath string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	baseline, err := policy.ReadFile(baselinePath, opts.Class)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidPolicy, err)
	}
	inferred, err := policy.ReadFile(inferredPath, opts.Class)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidPolicy, err)
	}

	cmp := policy.Compare(baseline, inferred)
	if f.JSON() {
		return f.Success(cmp.Report())
	}
	for _, class := range cmp.ClassIDs() {
		writeEntryComparison(f, class, cmp.Classes[class])
	}
	return nil
}

func writeEntryComparison(f *OutputFormatter, class string, ec policy.EntryComparison) {
	f.Printf("%s\n", class)
	writeScore(f, policy.CategoryGlobals, ec.Globals)
	writeScore(f, policy.CategoryReduces, ec.Reduces)
}

func writeScore(f *OutputFormatter, category policy.Category, s policy.Score) {
	f.Printf("  %-8s precision %.3f  recall %.3f  f1 %.3f  (both %d, baseline only %d, inferred only %d)\n",
		category, s.Precision, s.Recall, s.F1, s.TP(), s.FN(), s.FP())
	if !f.Verbose {
		return
	}
	if s.FN() > 0 {
		f.Printf("    missing: %s\n", strings.Join(s.InBaselineOnly.Strings(), ", "))
	}
	if s.FP() > 0 {
		f.Printf("    extra:   %s\n", strings.Join(s.InCandidateOnly.Strings(), ", "))
	}
}
