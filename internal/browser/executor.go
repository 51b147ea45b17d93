// internal/browser/executor.go
package browser

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

// scrollStep is the vertical distance of one untargeted SCROLL, roughly a
// viewport's worth.
const scrollStep = 600.0

// Executor dispatches validated actions against a session. It translates one
// Action into exactly one sequence of session calls and reports the outcome;
// it never retries and never resolves labels itself, the caller supplies the
// already-resolved selector.
type Executor struct {
	logger *zap.Logger
}

// NewExecutor builds an executor.
func NewExecutor(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{logger: logger.Named("executor")}
}

// Execute performs the action. selector is the resolved CSS selector of the
// target element, empty when the action has none. Returns the wall time the
// dispatch took alongside any failure.
func (e *Executor) Execute(ctx context.Context, session schemas.SessionContext, action schemas.Action, selector string) (time.Duration, error) {
	start := time.Now()
	err := e.dispatch(ctx, session, action, selector)
	elapsed := time.Since(start)

	if err != nil {
		e.logger.Debug("Action failed.",
			zap.String("kind", string(action.Kind)),
			zap.String("target", action.Target),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	}
	return elapsed, err
}

func (e *Executor) dispatch(ctx context.Context, session schemas.SessionContext, action schemas.Action, selector string) error {
	switch action.Kind {
	case schemas.ActionClick:
		return session.Click(ctx, selector)

	case schemas.ActionType:
		return session.Type(ctx, selector, action.Value)

	case schemas.ActionScroll:
		if selector != "" {
			return session.ScrollTo(ctx, selector)
		}
		if action.Value == "up" {
			return session.ScrollBy(ctx, -scrollStep)
		}
		return session.ScrollBy(ctx, scrollStep)

	case schemas.ActionNavigate:
		return session.Navigate(ctx, action.Value)

	case schemas.ActionWait:
		d := time.Duration(action.DurationMs) * time.Millisecond
		if selector != "" {
			return session.WaitVisible(ctx, selector, d)
		}
		return sleep(ctx, d)

	case schemas.ActionScreenshot:
		prefix := action.Value
		if prefix == "" {
			prefix = "step"
		}
		_, err := session.Screenshot(ctx, prefix)
		return err

	case schemas.ActionFinish:
		// Terminal marker; the loop transitions on it, nothing to dispatch.
		return nil

	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

// sleep pauses for d, honoring context cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
