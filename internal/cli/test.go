package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pickleball/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios>...",
		Short: "Run conformance scenarios",
		Long: `Run YAML conformance scenarios through the tracer and the enforcement
gate and check their assertions. Arguments are scenario files or
directories searched for .yaml and .yml files.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  pickleball test ./internal/harness/testdata/scenarios
  pickleball test ./scenarios --filter "call_*"
  pickleball test ./scenarios --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenario files by glob pattern on the file name")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	files, err := harness.FindScenarios(paths...)
	if err != nil {
		var nf *harness.ScenarioNotFoundError
		if errors.As(err, &nf) {
			return f.Fail(ExitCommandError, ErrCodeNotFound, err)
		}
		return f.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	files, err = filterScenarioFiles(files, opts.Filter)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, err)
	}

	if len(files) == 0 {
		if f.JSON() {
			return f.Success(TestResult{Scenarios: []ScenarioResult{}})
		}
		f.Printf("No scenarios found.\n")
		return nil
	}

	h := harness.New(harness.WithLogger(opts.Logger()))
	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, sr := range h.RunFiles(ctx, files) {
		res := scenarioResult(sr)
		result.Scenarios = append(result.Scenarios, res)
		if res.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if f.JSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		outputTestText(f, result)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %d scenario(s) failed", ErrCodeScenarios, result.Failed))
	}
	return nil
}

// filterScenarioFiles keeps files whose base name without extension matches
// the glob pattern.
func filterScenarioFiles(files []string, pattern string) ([]string, error) {
	if pattern == "" {
		return files, nil
	}
	var out []string
	for _, file := range files {
		base := filepath.Base(file)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		matched, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if matched {
			out = append(out, file)
		}
	}
	return out, nil
}

func scenarioResult(sr harness.SuiteResult) ScenarioResult {
	res := ScenarioResult{Name: filepath.Base(sr.Path), Path: sr.Path}
	if sr.Scenario != nil {
		res.Name = sr.Scenario.Name
	}
	switch {
	case sr.Err != nil:
		res.Errors = []string{sr.Err.Error()}
	case sr.Result != nil:
		res.Pass = sr.Result.Pass
		res.Errors = sr.Result.Errors
	}
	return res
}

func outputTestText(f *OutputFormatter, result TestResult) {
	for _, s := range result.Scenarios {
		if s.Pass {
			f.Printf("ok    %s\n", s.Name)
			continue
		}
		f.Printf("FAIL  %s (%s)\n", s.Name, s.Path)
		for _, e := range s.Errors {
			for _, line := range strings.Split(strings.TrimRight(e, "\n"), "\n") {
				f.Printf("      %s\n", line)
			}
		}
	}
	f.Printf("\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
