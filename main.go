// ./main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/webpilot-ai/webpilot/cmd"
	"github.com/webpilot-ai/webpilot/internal/observability"
)

// osExit allows mocking os.Exit in tests.
var osExit = os.Exit

func main() {
	// Interrupt signals cancel the run context so in-flight sessions stop at
	// a recorded step boundary instead of being killed mid-action.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			osExit(0)
			return
		}
		osExit(1)
	}
}
