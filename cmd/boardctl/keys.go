package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"board-service/ordering"
)

type keyResult struct {
	Key string `json:"key"`
}

func newKeysCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Compute and check order keys",
	}

	single := func(use, short string, nargs int, fn func(args []string) (string, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(nargs),
			RunE: func(cmd *cobra.Command, args []string) error {
				k, err := fn(args)
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), opts, k, keyResult{Key: k})
			},
		}
	}

	cmd.AddCommand(
		single("first", "Print the first key of an empty list", 0, func([]string) (string, error) {
			return ordering.First(), nil
		}),
		single("after <key>", "Print a key that sorts after key", 1, func(args []string) (string, error) {
			return ordering.After(args[0])
		}),
		single("before <key>", "Print a key that sorts before key", 1, func(args []string) (string, error) {
			return ordering.Before(args[0])
		}),
		single("between <low> <high>", "Print a key strictly between low and high", 2, func(args []string) (string, error) {
			return ordering.Between(args[0], args[1])
		}),
		newPlaceCommand(opts),
		newValidateCommand(opts),
	)
	return cmd
}

func newPlaceCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "place <index> [keys...]",
		Short: "Print the key for inserting at index among the given sibling keys",
		Long: `Print the key an item gets when dropped at index among its siblings.

The sibling keys are sorted before placing, so they may be given in any order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", args[0], err)
			}
			keys := append([]string(nil), args[1:]...)
			sort.Strings(keys)
			k, err := ordering.ForTargetIndex(keys, index)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), opts, k, keyResult{Key: k})
		},
	}
}

type validation struct {
	Key   string `json:"key"`
	Valid bool   `json:"valid"`
}

func newValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <key>...",
		Short: "Report whether each key is well formed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]validation, len(args))
			lines := make([]string, len(args))
			var bad []string
			for i, k := range args {
				ok := ordering.Validate(k)
				results[i] = validation{Key: k, Valid: ok}
				status := "ok"
				if !ok {
					status = "invalid"
					bad = append(bad, k)
				}
				lines[i] = k + "\t" + status
			}
			if err := emit(cmd.OutOrStdout(), opts, strings.Join(lines, "\n"), results); err != nil {
				return err
			}
			if len(bad) > 0 {
				return fmt.Errorf("%d invalid key(s): %s", len(bad), strings.Join(bad, ", "))
			}
			return nil
		},
	}
}
