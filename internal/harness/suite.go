package harness

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ScenarioNotFoundError is returned when a scenario path doesn't exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario path %q does not exist", e.Path)
}

// FindScenarios expands paths into scenario files. A file is taken as is;
// a directory contributes every .yaml and .yml file beneath it. The result
// is sorted and free of duplicates.
func FindScenarios(paths ...string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			return nil, &ScenarioNotFoundError{Path: p}
		}
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			ext := strings.ToLower(filepath.Ext(path))
			if !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// SuiteResult pairs a scenario file with its outcome. Err is set when the
// file could not be loaded or run.
type SuiteResult struct {
	Path     string
	Scenario *Scenario
	Result   *Result
	Err      error
}

// Passed reports whether the scenario loaded, ran and passed.
func (r SuiteResult) Passed() bool {
	return r.Err == nil && r.Result != nil && r.Result.Pass
}

// RunFiles loads and runs every scenario file in order. Scenario names
// must be unique across the suite because they name golden files.
func (h *Harness) RunFiles(ctx context.Context, files []string) []SuiteResult {
	out := make([]SuiteResult, 0, len(files))
	seen := make(map[string]string)
	for _, path := range files {
		sr := SuiteResult{Path: path}
		sr.Scenario, sr.Err = LoadScenario(path)
		if sr.Err == nil {
			if prev, dup := seen[sr.Scenario.Name]; dup {
				sr.Err = fmt.Errorf("duplicate scenario name %q (also in %s)", sr.Scenario.Name, prev)
			} else {
				seen[sr.Scenario.Name] = path
				sr.Result, sr.Err = h.Run(ctx, sr.Scenario)
			}
		}
		out = append(out, sr)
	}
	return out
}
