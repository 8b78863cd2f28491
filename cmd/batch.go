package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
	"github.com/xkilldash9x/rabbit-cli/internal/observability"
)

// batchEntry is one line of the batch report.
type batchEntry struct {
	File   string              `json:"file"`
	Error  string              `json:"error,omitempty"`
	Result *schemas.TaskResult `json:"result,omitempty"`
}

func newBatchCmd() *cobra.Command {
	var concurrency int

	batchCmd := &cobra.Command{
		Use:   "batch FILE...",
		Short: "Runs several task files concurrently, one browser per task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1, got %d", concurrency)
			}

			comps, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Shutdown()
			comps.serveMetrics(ctx)

			entries := make([]batchEntry, len(args))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(concurrency)

			for i, path := range args {
				g.Go(func() error {
					entries[i] = runTaskFile(gctx, comps, path)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			if err := writeJSON(cmd.OutOrStdout(), entries); err != nil {
				return err
			}

			failed := 0
			for _, e := range entries {
				if e.Error != "" || (e.Result != nil && e.Result.Status == schemas.TaskStatusError) {
					failed++
				}
			}
			logger.Info("Batch finished.", zap.Int("tasks", len(entries)), zap.Int("failed", failed))
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d tasks", errTaskFailed, failed, len(entries))
			}
			return nil
		},
	}

	batchCmd.Flags().IntVarP(&concurrency, "concurrency", "j", 2, "maximum number of tasks running at once")
	return batchCmd
}

func runTaskFile(ctx context.Context, comps *components, path string) batchEntry {
	in, err := loadTaskFile(path)
	if err != nil {
		return batchEntry{File: path, Error: err.Error()}
	}

	orch := comps.newOrchestrator()
	defer func() {
		if err := orch.Close(); err != nil {
			comps.logger.Warn("Error closing browser.", zap.String("file", path), zap.Error(err))
		}
	}()

	result := orch.Run(ctx, in)
	return batchEntry{File: path, Result: &result}
}
