package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pickleball/internal/manifest"
	"github.com/roach88/pickleball/internal/policy"
)

// UnionOptions holds flags for the union command.
type UnionOptions struct {
	*RootOptions
	Class     string
	FilesList string
	Output    string
}

// NewUnionCommand creates the union command.
func NewUnionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UnionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "union [file]...",
		Short: "Union policy and trace files",
		Long: `Union policy files and flat {globals, reduces} trace files into one
policy. Flat files are attributed to --class; policy files keep their
own class ids.

Examples:
  pickleball union a.json b.json --class flair.models.SequenceTagger
  pickleball union --files-list traces.txt -o union.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnion(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Class, "class", manifest.DefaultClass, "class id for flat trace files")
	cmd.Flags().StringVar(&opts.FilesList, "files-list", "", "file listing one input path per line")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "policy file to write")

	return cmd
}

func runUnion(opts *UnionOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	files := append([]string(nil), args...)
	if opts.FilesList != "" {
		listed, err := readFilesList(opts.FilesList)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeReadFailed, err)
		}
		files = append(files, listed...)
	}
	if len(files) == 0 {
		return f.Fail(ExitCommandError, ErrCodeGeneric, fmt.Errorf("no input files: pass files or --files-list"))
	}

	policies := make([]policy.Policy, 0, len(files))
	for _, path := range files {
		p, err := policy.ReadFile(path, opts.Class)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeInvalidPolicy, err)
		}
		f.VerboseLog("Read %s (%d class(es))", path, p.Len())
		policies = append(policies, p)
	}
	union := policy.Union(policies...)

	data, err := policy.Marshal(union)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return f.Fail(ExitCommandError, ErrCodeWriteFailed, err)
		}
	}

	switch {
	case f.JSON():
		return f.Success(map[string]any{
			"inputs": len(files),
			"policy": json.RawMessage(data),
		})
	case opts.Output == "":
		_, err = f.Writer.Write(data)
		return err
	default:
		f.Printf("Unioned %d file(s) into %d class(es); wrote %s\n", len(files), union.Len(), opts.Output)
		return nil
	}
}

// readFilesList reads one path per line. Blank lines and lines starting
// with # are skipped.
func readFilesList(path string) ([]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var out []string
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}
