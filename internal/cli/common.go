package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pickleball/internal/corpus"
	"github.com/roach88/pickleball/internal/engine"
	"github.com/roach88/pickleball/internal/policy"
)

// limitFlags are the run bounds shared by every command that interprets
// streams.
type limitFlags struct {
	MaxSteps int
	Timeout  time.Duration
}

func (l *limitFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&l.MaxSteps, "max-steps", engine.DefaultMaxSteps, "instruction budget per stream (0 disables)")
	cmd.Flags().DurationVar(&l.Timeout, "timeout", engine.DefaultTimeout, "wall-clock budget per stream (0 disables)")
}

func (l *limitFlags) engineOptions(logger *slog.Logger) []engine.Option {
	return []engine.Option{
		engine.WithMaxSteps(l.MaxSteps),
		engine.WithTimeout(l.Timeout),
		engine.WithLogger(logger),
	}
}

// collectModels expands files and directories into model files. Files are
// taken as given; directories contribute every model file beneath them.
func collectModels(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		found, err := corpus.Discover(p)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", p, err)
		}
		out = append(out, found...)
	}
	return out, nil
}

// policyJSON renders p for embedding in a JSON response.
func policyJSON(p policy.Policy) (json.RawMessage, error) {
	data, err := policy.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// countsJSON renders status counts with every status present.
func countsJSON(counts map[corpus.Status]int) map[string]int {
	out := map[string]int{
		string(corpus.StatusOK):      0,
		string(corpus.StatusSkipped): 0,
		string(corpus.StatusFailed):  0,
	}
	for status, n := range counts {
		out[string(status)] = n
	}
	return out
}
