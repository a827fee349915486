package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pickleball/internal/corpus"
	"github.com/roach88/pickleball/internal/engine"
	"github.com/roach88/pickleball/internal/host"
	"github.com/roach88/pickleball/internal/manifest"
	"github.com/roach88/pickleball/internal/policy"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Policy string
	Class  string
	limits limitFlags
}

// LoadedSample is the gate outcome for one sample.
type LoadedSample struct {
	Name      string     `json:"name"`
	Loaded    bool       `json:"loaded"`
	Type      string     `json:"type,omitempty"`
	Code      string     `json:"code,omitempty"`
	Violation *Violation `json:"violation,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Violation is the JSON shape of a policy violation.
type Violation struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Offset int64  `json:"offset"`
}

// LoadResult holds the load command output.
type LoadResult struct {
	Class   string         `json:"class"`
	Samples []LoadedSample `json:"samples"`
	Loaded  int            `json:"loaded"`
	Failed  int            `json:"failed"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <model-file>",
		Short: "Load a model through the enforcement gate",
		Long: `Load every pickle in a model file through the enforcement gate.

Only globals in the class's allow-list are resolved, and only callables
in its reduce list are invoked. The first disallowed symbol rejects the
sample; nothing from a rejected sample is returned.

Exit codes:
  0 - Every sample loaded
  1 - A sample was rejected or failed to load
  2 - Command error (unreadable model or policy, etc.)

Examples:
  pickleball load pytorch_model.bin --policy policies/flair.json --class flair.models.SequenceTagger
  pickleball load model.pt --policy trace.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Policy, "policy", "", "policy or flat trace file (required)")
	_ = cmd.MarkFlagRequired("policy")
	cmd.Flags().StringVar(&opts.Class, "class", manifest.DefaultClass, "class id whose entry is enforced")
	opts.limits.bind(cmd)

	return cmd
}

func runLoad(opts *LoadOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := policy.ReadFile(opts.Policy, opts.Class)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidPolicy, err)
	}
	if _, ok := p.Entry(opts.Class); !ok {
		opts.Logger().Warn("policy has no entry for class; every symbol will be rejected", "class", opts.Class)
	}
	samples, err := corpus.Open(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeReadFailed, err)
	}

	registry := host.Default()
	host.RegisterTorch(registry)
	gateOpts := append(opts.limits.engineOptions(opts.Logger()),
		engine.WithPersistentLoader(host.TorchPersistentLoader()))
	gate := engine.NewGate(registry, gateOpts...)

	result := LoadResult{Class: opts.Class, Samples: make([]LoadedSample, 0, len(samples))}
	for _, s := range samples {
		ls := loadSample(ctx, gate, s, p, opts.Class)
		if ls.Loaded {
			result.Loaded++
		} else {
			result.Failed++
		}
		result.Samples = append(result.Samples, ls)
	}

	if f.JSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		for _, ls := range result.Samples {
			if ls.Loaded {
				f.Printf("loaded    %s (%s)\n", ls.Name, ls.Type)
				continue
			}
			f.Printf("rejected  %s\n          %s\n", ls.Name, ls.Error)
		}
	}

	if result.Failed > 0 {
		code := ErrCodeLoadFailed
		for _, ls := range result.Samples {
			if ls.Violation != nil {
				code = ErrCodeViolation
				break
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %d of %d sample(s) rejected", code, result.Failed, len(samples)))
	}
	return nil
}

func loadSample(ctx context.Context, gate *engine.Gate, s corpus.Sample, p policy.Policy, classID string) LoadedSample {
	ls := LoadedSample{Name: s.Name()}

	var obj host.Object
	var err error
	if s.Stacked {
		var objs []host.Object
		objs, err = gate.LoadStacked(ctx, s.Data, p, classID)
		if err == nil {
			obj = objs[len(objs)-1]
		}
	} else {
		obj, err = gate.Load(ctx, s.Data, p, classID)
	}
	if err != nil {
		ls.Code = engine.ErrorCode(err)
		ls.Error = err.Error()
		if pv, ok := engine.AsPolicyViolation(err); ok {
			ls.Violation = &Violation{Kind: string(pv.Kind), Name: string(pv.Name), Offset: pv.Offset}
		}
		return ls
	}
	ls.Loaded = true
	ls.Type = host.TypeName(obj)
	return ls
}
