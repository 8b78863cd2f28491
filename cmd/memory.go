package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/rabbit-cli/internal/observability"
	"github.com/xkilldash9x/rabbit-cli/internal/store"
)

// withStore opens the configured session memory for the duration of fn.
func withStore(ctx context.Context, fn func(*store.Store) error) error {
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	s, err := openStore(ctx, cfg.Memory(), observability.GetLogger())
	if err != nil {
		return fmt.Errorf("failed to open session memory: %w", err)
	}
	defer s.Close()
	return fn(s)
}

func newMemoryCmd() *cobra.Command {
	memoryCmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspects and edits session memory",
	}

	getCmd := &cobra.Command{
		Use:   "get SESSION KEY",
		Short: "Prints one stored value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(s *store.Store) error {
				value, found, err := s.Get(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("key %q not found in session %q", args[1], args[0])
				}
				return writeJSON(cmd.OutOrStdout(), value)
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list SESSION",
		Short: "Prints every entry of a session, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(s *store.Store) error {
				entries, err := s.GetAll(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if entries == nil {
					entries = []store.Entry{}
				}
				return writeJSON(cmd.OutOrStdout(), entries)
			})
		},
	}

	var limit int
	historyCmd := &cobra.Command{
		Use:   "history SESSION",
		Short: "Prints the most recent task results of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(s *store.Store) error {
				records, err := s.TaskHistory(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), records)
			})
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of tasks to show")

	forgetCmd := &cobra.Command{
		Use:   "forget SESSION KEY",
		Short: "Deletes one stored value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(s *store.Store) error {
				err := s.Delete(cmd.Context(), args[0], args[1])
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("key %q not found in session %q", args[1], args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", args[1])
				return nil
			})
		},
	}

	memoryCmd.AddCommand(getCmd, listCmd, historyCmd, forgetCmd)
	return memoryCmd
}
