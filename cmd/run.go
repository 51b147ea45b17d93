// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/agent"
	"github.com/webpilot-ai/webpilot/internal/browser"
	"github.com/webpilot-ai/webpilot/internal/llmclient"
	"github.com/webpilot-ai/webpilot/internal/observability"
	"github.com/webpilot-ai/webpilot/internal/orchestrator"
	"github.com/webpilot-ai/webpilot/internal/store"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd(app *appContext) *cobra.Command {
	var (
		startURL  string
		taskText  string
		tasksFile string
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one or more browser tasks to completion",
		Long: `Runs the agent loop against a live page until the task is done, fails, or
the iteration budget runs out. A single task is given with --url and --task; a
JSON task file fans out over concurrent browser tabs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := app.cfg

			// Flags override the config file for the switches a task run
			// toggles most often.
			if cmd.Flags().Changed("headless") {
				cfg.Browser.Headless, _ = cmd.Flags().GetBool("headless")
			}
			if cmd.Flags().Changed("highlight") {
				cfg.Browser.HighlightElements, _ = cmd.Flags().GetBool("highlight")
			}
			if cmd.Flags().Changed("persist-state") {
				cfg.Agent.PersistState, _ = cmd.Flags().GetBool("persist-state")
			}
			if cmd.Flags().Changed("state-dir") {
				cfg.Agent.StateDir, _ = cmd.Flags().GetString("state-dir")
			}
			if cmd.Flags().Changed("max-iterations") {
				cfg.Agent.MaxIterations, _ = cmd.Flags().GetInt("max-iterations")
			}

			tasks, err := resolveTasks(startURL, taskText, tasksFile)
			if err != nil {
				return err
			}

			logger.Info("Starting run",
				zap.Int("tasks", len(tasks)),
				zap.Bool("headless", cfg.Browser.Headless),
				zap.Int("max_iterations", cfg.Agent.MaxIterations),
			)

			components, err := initializeRunComponents(ctx, app, logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize run components: %w", err)
			}
			defer components.Shutdown()

			results, runErr := components.Orchestrator.Run(ctx, tasks)
			printResults(cmd, results)

			if runErr != nil {
				if errors.Is(runErr, context.Canceled) {
					logger.Warn("Run aborted gracefully")
					return fmt.Errorf("run aborted by user signal")
				}
				return runErr
			}
			return nil
		},
	}

	runCmd.Flags().StringVarP(&startURL, "url", "u", "", "Starting page for a single task")
	runCmd.Flags().StringVarP(&taskText, "task", "t", "", "Natural-language goal for a single task")
	runCmd.Flags().StringVarP(&tasksFile, "tasks-file", "f", "", "JSON file of {url, task} objects, one session each")
	runCmd.Flags().Bool("headless", true, "Run the browser headless (overrides config)")
	runCmd.Flags().Bool("highlight", false, "Paint label badges onto the page during extraction (overrides config)")
	runCmd.Flags().Bool("persist-state", false, "Write each session's attempt history to the state dir (overrides config)")
	runCmd.Flags().String("state-dir", "", "Directory for persisted session histories (overrides config)")
	runCmd.Flags().Int("max-iterations", 0, "Iteration budget per session (overrides config)")

	return runCmd
}

// resolveTasks turns the flag combination into the session assignments.
func resolveTasks(startURL, taskText, tasksFile string) ([]orchestrator.Task, error) {
	if tasksFile != "" {
		if startURL != "" || taskText != "" {
			return nil, fmt.Errorf("--tasks-file cannot be combined with --url/--task")
		}
		return orchestrator.LoadTasks(tasksFile)
	}
	if startURL == "" || taskText == "" {
		return nil, fmt.Errorf("either --tasks-file or both --url and --task are required")
	}
	return []orchestrator.Task{{URL: startURL, Task: taskText}}, nil
}

// runComponents holds initialized services.
type runComponents struct {
	LLM            schemas.LLMClient
	BrowserManager *browser.Manager
	Store          *store.Store
	DBPool         *pgxpool.Pool
	Orchestrator   *orchestrator.Orchestrator
}

// Shutdown gracefully closes all components.
func (rc *runComponents) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if rc.BrowserManager != nil {
		rc.BrowserManager.Shutdown(shutdownCtx)
	}
	if rc.LLM != nil {
		if err := rc.LLM.Close(); err != nil {
			observability.GetLogger().Warn("Error closing LLM client", zap.Error(err))
		}
	}
	if rc.DBPool != nil {
		rc.DBPool.Close()
	}
}

// initializeRunComponents handles dependency injection.
func initializeRunComponents(ctx context.Context, app *appContext, logger *zap.Logger) (*runComponents, error) {
	cfg := app.cfg
	components := &runComponents{}

	// 1. LLM client
	llm, err := llmclient.NewClient(ctx, cfg.Agent, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	components.LLM = llm

	// 2. Browser manager
	components.BrowserManager = browser.NewManager(cfg, logger)

	// 3. Optional durable archive
	var archiver orchestrator.Archiver
	if cfg.Store.Enabled {
		dbPool, err := pgxpool.New(ctx, cfg.Store.URL)
		if err != nil {
			return components, fmt.Errorf("failed to connect to database: %w", err)
		}
		components.DBPool = dbPool

		dbStore, err := store.New(ctx, dbPool, logger)
		if err != nil {
			return components, fmt.Errorf("failed to initialize store: %w", err)
		}
		if err := dbStore.EnsureSchema(ctx); err != nil {
			return components, err
		}
		components.Store = dbStore
		archiver = dbStore
	}

	// 4. Orchestrator
	orch, err := orchestrator.New(cfg, logger, llm,
		func(ctx context.Context) (schemas.SessionContext, error) {
			return components.BrowserManager.NewSession(ctx)
		},
		archiver,
	)
	if err != nil {
		return components, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	components.Orchestrator = orch

	return components, nil
}

// printResults writes a human-readable outcome line per session.
func printResults(cmd *cobra.Command, results []orchestrator.SessionResult) {
	for _, res := range results {
		switch res.Phase {
		case agent.StateDone:
			cmd.Printf("DONE    %s  %q -> %s\n", res.SessionID, res.Task.Task, res.Result)
		case agent.StateFailed:
			cmd.Printf("FAILED  %s  %q: %s\n", res.SessionID, res.Task.Task, res.FailureReason)
		default:
			cmd.Printf("ABORTED %s  %q (phase %s, iteration %d)\n", res.SessionID, res.Task.Task, res.Phase, res.Iterations)
		}
	}
}
