package cmd

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
	"github.com/xkilldash9x/rabbit-cli/internal/observability"
)

// errTaskFailed is returned after an error-status result has been printed.
var errTaskFailed = errors.New("task finished with status error")

func newRunCmd() *cobra.Command {
	var (
		taskText string
		taskFile string
		urls     []string
		session  string
		maxSteps int
		keepOpen bool
		headless bool
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs a single task and prints its result as JSON",
		Example: `  rabbit run --task "Summarize the front page" --urls https://news.ycombinator.com
  rabbit run --task-file tasks/crypto.yaml --session research-1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("headless") {
				cfg.SetBrowserHeadless(headless)
			}
			if cmd.Flags().Changed("keep-open") {
				cfg.SetBrowserKeepOpen(keepOpen)
			}
			if cmd.Flags().Changed("max-steps") {
				cfg.SetAgentMaxSteps(maxSteps)
			}

			var in schemas.TaskInput
			switch {
			case taskFile != "":
				if in, err = loadTaskFile(taskFile); err != nil {
					return err
				}
			case taskText != "":
				in.Instructions = taskText
			default:
				return errors.New("either --task or --task-file is required")
			}
			if cmd.Flags().Changed("urls") {
				raw, err := json.Marshal(urls)
				if err != nil {
					return fmt.Errorf("failed to encode urls: %w", err)
				}
				in.Parameters.URLs = raw
			}
			if session != "" {
				in.SessionID = session
			}
			if in.SessionID == "" {
				in.SessionID = uuid.New().String()
			}

			comps, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Shutdown()
			comps.serveMetrics(ctx)

			orch := comps.newOrchestrator()
			result := orch.Run(ctx, in)

			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}

			if cfg.Browser().KeepOpen && ctx.Err() == nil {
				logger.Info("Keeping the browser open until interrupted.", zap.String("session_id", in.SessionID))
				<-ctx.Done()
			}
			if err := orch.Close(); err != nil {
				logger.Warn("Error closing browser.", zap.Error(err))
			}

			if result.Status == schemas.TaskStatusError {
				return fmt.Errorf("%w: %s", errTaskFailed, result.Message)
			}
			return nil
		},
	}

	runCmd.Flags().StringVarP(&taskText, "task", "t", "", "task instructions")
	runCmd.Flags().StringVarP(&taskFile, "task-file", "f", "", "JSON or YAML task file")
	runCmd.Flags().StringSliceVarP(&urls, "urls", "u", nil, "resources to visit, in order (overrides the task file)")
	runCmd.Flags().StringVarP(&session, "session", "s", "", "session id (default: a new UUID)")
	runCmd.Flags().IntVar(&maxSteps, "max-steps", 0, "maximum follow-up actions per resource")
	runCmd.Flags().BoolVar(&keepOpen, "keep-open", false, "keep the browser open after the task until interrupted")
	runCmd.Flags().BoolVar(&headless, "headless", true, "run the browser without a window")
	return runCmd
}
