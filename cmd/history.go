// File: cmd/history.go
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/webpilot-ai/webpilot/internal/memory"
)

// newHistoryCmd creates the `history` command, which inspects a persisted
// session's attempt log.
func newHistoryCmd(app *appContext) *cobra.Command {
	var sessionID string

	historyCmd := &cobra.Command{
		Use:   "history [file]",
		Short: "Prints the attempt history of a persisted session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			switch {
			case len(args) == 1:
				path = args[0]
			case sessionID != "":
				path = filepath.Join(app.cfg.Agent.StateDir, sessionID+".json")
			default:
				return fmt.Errorf("either a file argument or --session-id is required")
			}

			loadedID, records, err := memory.LoadRecords(path)
			if err != nil {
				return err
			}

			cmd.Printf("session %s: %d attempts\n", loadedID, len(records))
			for _, rec := range records {
				line := fmt.Sprintf("%s  iter=%-3d %-10s %-7s", rec.Timestamp.Format("15:04:05"), rec.Iteration, rec.Phase, rec.Outcome)
				if rec.ActionKind != "" {
					line += fmt.Sprintf("  %s", rec.ActionKind)
				}
				if rec.ElementLabel != "" {
					line += fmt.Sprintf(" [%s]", rec.ElementLabel)
				}
				if rec.Error != "" {
					line += fmt.Sprintf("  error=%s (%s)", rec.Error, rec.ErrorCode)
				}
				cmd.Println(line)
			}
			return nil
		},
	}

	historyCmd.Flags().StringVar(&sessionID, "session-id", "", "Session id to look up in the configured state dir")
	return historyCmd
}
