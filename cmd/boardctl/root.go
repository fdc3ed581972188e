package main

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"
}

var validFormats = []string{"text", "json"}

// NewRootCommand creates the boardctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "boardctl",
		Short:         "Operator tools for the board service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newKeysCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))
	return cmd
}

// emit writes text as a line, or v as JSON when --format=json.
func emit(w io.Writer, opts *RootOptions, text string, v any) error {
	if opts.Format == "json" {
		data, err := sonic.Marshal(v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
