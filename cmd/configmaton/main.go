// Command configmaton reads a JSON rule document from stdin and emits
// either a compiled binary image (-o/--output) or a Graphviz rendering of
// the origin-form automaton (--dot).
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aledsdavies/configmaton/internal/builder"
	"github.com/aledsdavies/configmaton/internal/cerrors"
	"github.com/aledsdavies/configmaton/internal/rules"

	"github.com/aledsdavies/configmaton"
)

func main() {
	var (
		output string
		dot    string
	)

	rootCmd := &cobra.Command{
		Use:           "configmaton",
		Short:         "Compile a JSON rule document into a compiled configmaton image",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			exitCode, err := run(cmd.InOrStdin(), output, dot)
			if err != nil {
				return err
			}
			if exitCode != 0 {
				return fmt.Errorf("build failed with exit code %d", exitCode)
			}
			return nil
		},
	}

	rootCmd.Flags().StringVarP(&output, "output", "o", "", "write the compiled binary image to path")
	rootCmd.Flags().StringVar(&dot, "dot", "", "write a Graphviz .dot rendering of the origin automaton to path")

	if err := rootCmd.Execute(); err != nil {
		formatError(os.Stderr, err)
		os.Exit(1)
	}
}

// run reads a JSON rule document from in, validates and lowers it, and
// writes whichever of output/dotPath was requested. At least one of them
// must be set.
func run(in io.Reader, output, dotPath string) (int, error) {
	if output == "" && dotPath == "" {
		return 1, cerrors.New(cerrors.BuildRejected, "at least one of -o/--output or --dot is required")
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return 1, fmt.Errorf("reading rule document from stdin: %w", err)
	}

	cmds, err := rules.Parse(data)
	if err != nil {
		return 1, err
	}

	if output != "" {
		buf, _, err := configmaton.Serialize(cmds, configmaton.DefaultBuildConfig())
		if err != nil {
			return 1, err
		}
		if err := os.WriteFile(output, buf, 0o644); err != nil {
			return 1, fmt.Errorf("writing image to %s: %w", output, err)
		}
	}

	if dotPath != "" {
		p, init, err := builder.Parse(cmds, configmaton.DefaultBuildConfig().StopSize)
		if err != nil {
			return 1, err
		}
		f, err := os.Create(dotPath)
		if err != nil {
			return 1, fmt.Errorf("creating %s: %w", dotPath, err)
		}
		defer f.Close()
		if err := p.WriteDot(f, init); err != nil {
			return 1, fmt.Errorf("writing dot output: %w", err)
		}
	}

	return 0, nil
}

// formatError prints err to w, unwrapping a *cerrors.Error to show its
// Kind alongside the message.
func formatError(w io.Writer, err error) {
	var ce *cerrors.Error
	if e, ok := err.(*cerrors.Error); ok {
		ce = e
	}
	if ce != nil {
		fmt.Fprintf(w, "configmaton: %s: %s\n", ce.Kind, ce.Message)
		return
	}
	fmt.Fprintf(w, "configmaton: %v\n", err)
}
