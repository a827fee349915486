package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/pickleball/internal/manifest"
	"github.com/roach88/pickleball/internal/policy"
)

// DefaultsOptions holds flags for the defaults command.
type DefaultsOptions struct {
	*RootOptions
	DefaultPolicy string
	Output        string
	Only          []string
}

// WrittenPolicy records one policy file written by defaults.
type WrittenPolicy struct {
	Library string `json:"library"`
	Class   string `json:"class"`
	Path    string `json:"path"`
}

// NewDefaultsCommand creates the defaults command.
func NewDefaultsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DefaultsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "defaults <manifest.toml>",
		Short: "Write the default policy for every library",
		Long: `Write one policy per manifest library whose only entry is the default
policy's entry for system.default_class, re-attributed to the library's
model class. Used to measure how a generic allow-list fares against
per-library policies.

Without --output each policy goes to the library's policy path.

Examples:
  pickleball defaults manifest.toml --default-policy torch-module.json --output ablation/
  pickleball defaults manifest.toml --only flair`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDefaults(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DefaultPolicy, "default-policy", "", "default policy file (overrides system.default_policy)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "directory receiving <library>.json")
	cmd.Flags().StringSliceVar(&opts.Only, "only", nil, "write only these libraries")

	return cmd
}

func runDefaults(opts *DefaultsOptions, manifestPath string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidManifest, err)
	}
	libs, err := m.Select(opts.Only...)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidManifest, err)
	}

	source := opts.DefaultPolicy
	if source == "" {
		source = m.DefaultPolicyPath()
	}
	if source == "" {
		return f.Fail(ExitCommandError, ErrCodeGeneric,
			fmt.Errorf("no default policy: pass --default-policy or set system.default_policy"))
	}
	def, err := policy.ReadFile(source, m.System.DefaultClass)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidPolicy, err)
	}
	entry, ok := def.Entry(m.System.DefaultClass)
	if !ok {
		return f.Fail(ExitCommandError, ErrCodeInvalidPolicy,
			fmt.Errorf("%s has no entry for %s", source, m.System.DefaultClass))
	}

	written := make([]WrittenPolicy, 0, len(libs))
	for _, lib := range libs {
		path := lib.PolicyPath
		if opts.Output != "" {
			path = filepath.Join(opts.Output, lib.Name+".json")
		}
		p, err := policy.Fragment(lib.ModelClass, entry)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeInvalidManifest, fmt.Errorf("library %s: %w", lib.Name, err))
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return f.Fail(ExitCommandError, ErrCodeWriteFailed, err)
		}
		if err := policy.WriteFile(path, p); err != nil {
			return f.Fail(ExitCommandError, ErrCodeWriteFailed, err)
		}
		f.VerboseLog("Wrote %s", path)
		written = append(written, WrittenPolicy{Library: lib.Name, Class: lib.ModelClass, Path: path})
	}

	if f.JSON() {
		return f.Success(written)
	}
	f.Printf("Wrote %d default polic(ies) from %s\n", len(written), source)
	return nil
}
