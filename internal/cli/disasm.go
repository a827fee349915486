package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/pickleball/internal/corpus"
	"github.com/roach88/pickleball/internal/pickle"
)

// Listing is the disassembly of one sample.
type Listing struct {
	Name    string `json:"name"`
	Listing string `json:"listing"`
	Error   string `json:"error,omitempty"`
}

// NewDisasmCommand creates the disasm command.
func NewDisasmCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disasm <model-file>",
		Short: "Print the opcode listing of a model file",
		Long: `Print one line per instruction: offset, opcode name and operand.
Zip archives list every */data.pkl member; stacked pickles are listed
one after another. A decode error ends the listing for that sample.

Examples:
  pickleball disasm model.pt
  pickleball disasm archive.pt --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDisasm(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runDisasm(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	samples, err := corpus.Open(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeReadFailed, err)
	}

	listings := make([]Listing, 0, len(samples))
	failed := 0
	for _, s := range samples {
		l := Listing{Name: s.Name()}
		l.Listing, err = pickle.Disassemble(s.Data)
		if err != nil {
			l.Error = err.Error()
			failed++
		}
		listings = append(listings, l)
	}

	if f.JSON() {
		if err := f.Success(listings); err != nil {
			return err
		}
	} else {
		for i, l := range listings {
			if len(listings) > 1 {
				if i > 0 {
					f.Printf("\n")
				}
				f.Printf("== %s ==\n", l.Name)
			}
			f.Printf("%s", l.Listing)
			if l.Error != "" {
				f.Printf("error: %s\n", l.Error)
			}
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, "disassembly stopped on a decode error")
	}
	return nil
}
