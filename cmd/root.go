// -- cmd/root.go --
package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/internal/config"
	"github.com/webpilot-ai/webpilot/internal/observability"
)

// appContext carries the loaded configuration from the root command's
// PersistentPreRunE into the subcommands.
type appContext struct {
	cfg *config.Config
}

// Execute builds a fresh command tree and runs it with the given
// signal-aware context.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		return err
	}
	return nil
}

// NewRootCommand creates the root command and its subcommands. Each call
// returns a pristine tree so flag state never leaks between executions.
func NewRootCommand() *cobra.Command {
	app := &appContext{}
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "webpilot",
		Short: "webpilot drives a browser through natural-language tasks.",
		// Version is dynamically set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// This function runs before any command, setting up config and logging.
			cfg, err := config.Load(cfgFile)
			if err != nil {
				// Initialize a fallback logger so the error is still reported somewhere.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "webpilot"})
				return err
			}
			app.cfg = cfg
			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting webpilot", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))

	return rootCmd
}
