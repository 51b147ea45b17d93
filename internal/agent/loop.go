// internal/agent/loop.go

// Package agent implements the observe-plan-act-reflect decision loop that
// couples structured LLM output to retryable browser actions against a
// mutating page. All retry policy lives here: the extractor, executor, and
// LLM client each perform their work once per request and report the outcome.
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/config"
	"github.com/webpilot-ai/webpilot/internal/memory"
)

// Extractor captures page snapshots.
type Extractor interface {
	Capture(ctx context.Context, session schemas.SessionContext) (*schemas.Snapshot, error)
}

// Executor dispatches one action against a session.
type Executor interface {
	Execute(ctx context.Context, session schemas.SessionContext, action schemas.Action, selector string) (time.Duration, error)
}

// Loop drives one session through the decision state machine. Each Step call
// executes exactly one phase, appends exactly one attempt record, and returns
// the successor state.
type Loop struct {
	cfg       config.AgentConfig
	logger    *zap.Logger
	planner   *planner
	reflector *reflector
	extractor Extractor
	executor  Executor
	session   schemas.SessionContext
	log       *memory.Log

	// limiter throttles LLM calls; shared across concurrent sessions.
	limiter *rate.Limiter
}

// NewLoop wires a decision loop for one session. limiter may be nil when no
// request throttling is wanted.
func NewLoop(
	cfg config.AgentConfig,
	logger *zap.Logger,
	llm schemas.LLMClient,
	extractor Extractor,
	executor Executor,
	session schemas.SessionContext,
	log *memory.Log,
	limiter *rate.Limiter,
) *Loop {
	loopLogger := logger.Named("agent_loop").With(zap.String("session_id", session.ID()))
	return &Loop{
		cfg:       cfg,
		logger:    loopLogger,
		planner:   newPlanner(cfg, loopLogger, llm),
		reflector: newReflector(cfg, loopLogger, llm),
		extractor: extractor,
		executor:  executor,
		session:   session,
		log:       log,
		limiter:   limiter,
	}
}

// Memory exposes the session's attempt log.
func (l *Loop) Memory() *memory.Log { return l.log }

// Run steps the loop until it reaches a terminal phase or the context is
// cancelled.
func (l *Loop) Run(ctx context.Context, state State) (State, error) {
	for !state.Phase.Terminal() {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		next, err := l.Step(ctx, state)
		if err != nil {
			return state, err
		}
		if next.Phase != state.Phase {
			l.logger.Debug("Phase transition.",
				zap.String("from", string(state.Phase)),
				zap.String("to", string(next.Phase)),
				zap.Int("iteration", next.Iteration),
			)
		}
		state = next
	}

	switch state.Phase {
	case StateDone:
		l.logger.Info("Task complete.", zap.String("result", state.Result), zap.Int("iterations", state.Iteration))
	case StateFailed:
		l.logger.Warn("Task failed.", zap.String("reason", state.FailureReason), zap.Int("iterations", state.Iteration))
	}
	return state, nil
}

// Step executes one phase of the state machine. It appends exactly one
// attempt record per transition; a context cancellation aborts the step
// without transitioning.
func (l *Loop) Step(ctx context.Context, state State) (State, error) {
	if err := ctx.Err(); err != nil {
		return state, err
	}

	switch state.Phase {
	case StateObserving:
		return l.stepObserving(ctx, state)
	case StatePlanning:
		return l.stepPlanning(ctx, state)
	case StateActing:
		return l.stepActing(ctx, state)
	case StateReflecting:
		return l.stepReflecting(ctx, state)
	case StateDone, StateFailed:
		return state, nil
	default:
		return state, fmt.Errorf("unknown loop phase %q", state.Phase)
	}
}

func (l *Loop) stepObserving(ctx context.Context, state State) (State, error) {
	if state.Iteration >= l.cfg.MaxIterations {
		state.Phase = StateFailed
		state.FailureReason = fmt.Sprintf("iteration budget of %d exhausted", l.cfg.MaxIterations)
		l.record(state, StateObserving, schemas.OutcomeFailure, nil, "", CodeExtractionFailure, state.FailureReason)
		return state, nil
	}

	snap, err := l.extractor.Capture(ctx, l.session)
	if err != nil {
		// One retry after a short delay; extraction failing twice in a row
		// means the page is not observable and the session cannot continue.
		l.logger.Warn("Snapshot extraction failed, retrying once.", zap.Error(err))
		if sleepErr := sleepCtx(ctx, l.cfg.ExtractionRetryWait); sleepErr != nil {
			return state, sleepErr
		}
		snap, err = l.extractor.Capture(ctx, l.session)
		if err != nil {
			if ctx.Err() != nil {
				return state, ctx.Err()
			}
			extErr := &ExtractionError{Err: err}
			state.Phase = StateFailed
			state.FailureReason = extErr.Error()
			l.record(state, StateObserving, schemas.OutcomeFailure, nil, "", CodeExtractionFailure, err.Error())
			return state, nil
		}
	}

	state.Snapshot = snap
	state.PlanningAttempts = 0
	state.Phase = StatePlanning
	l.record(state, StateObserving, schemas.OutcomeSuccess, nil, "", "", "")
	return state, nil
}

func (l *Loop) stepPlanning(ctx context.Context, state State) (State, error) {
	if err := l.waitTurn(ctx); err != nil {
		return state, err
	}

	exhausted := l.log.Exhausted()
	action, raw, err := l.planner.decide(ctx, state, exhausted, l.log.LastN(l.cfg.HistoryWindow))
	if err == nil {
		var selector string
		selector, err = resolveTarget(action, state.Snapshot, exhausted)
		if err == nil {
			state.Pending = &pendingAction{Action: action, Selector: selector, PreHash: state.Snapshot.Hash}
			state.FinishClaimed = action.Kind == schemas.ActionFinish
			state.Feedback = ""
			state.PlanningAttempts = 0
			state.Phase = StateActing
			l.record(state, StatePlanning, schemas.OutcomeSuccess, &action, action.Target, "", "")
			return state, nil
		}
	}
	if ctx.Err() != nil {
		return state, ctx.Err()
	}

	if planErr, ok := err.(*PlanningError); ok {
		state.PlanningAttempts++
		state.Feedback = planningFeedback(planErr, raw)
		l.record(state, StatePlanning, schemas.OutcomeFailure, nil, action.Target, planErr.Code, planErr.Err.Error())

		if state.PlanningAttempts >= l.cfg.PlanningRetries {
			state.Phase = StateFailed
			state.FailureReason = fmt.Sprintf("planning failed %d times in a row: %v", state.PlanningAttempts, planErr.Err)
		}
		return state, nil
	}

	// Transport-level failure: the client already exhausted its own backoff,
	// so the model is unreachable and the session cannot proceed.
	state.Phase = StateFailed
	state.FailureReason = fmt.Sprintf("llm unavailable: %v", err)
	l.record(state, StatePlanning, schemas.OutcomeFailure, nil, "", CodePlanningFailure, err.Error())
	return state, nil
}

func (l *Loop) stepActing(ctx context.Context, state State) (State, error) {
	if state.Pending == nil {
		state.Phase = StateFailed
		state.FailureReason = "acting phase entered without a pending action"
		l.record(state, StateActing, schemas.OutcomeFailure, nil, "", CodeExecutionFailure, state.FailureReason)
		return state, nil
	}

	action := state.Pending.Action
	if action.Kind == schemas.ActionFinish {
		// Nothing to dispatch; reflection confirms the claim.
		state.Phase = StateReflecting
		l.record(state, StateActing, schemas.OutcomeSuccess, &action, "", "", "")
		return state, nil
	}

	retryCount := l.log.FailureCount(action.Target)
	elapsed, err := l.executor.Execute(ctx, l.session, action, state.Pending.Selector)
	if err != nil {
		if ctx.Err() != nil {
			return state, ctx.Err()
		}
		execErr := &ExecutionError{
			Label:    action.Target,
			Selector: state.Pending.Selector,
			Code:     classifyExecutionError(err, action.Kind == schemas.ActionNavigate),
			Err:      err,
		}
		l.logger.Debug("Action execution failed.",
			zap.String("kind", string(action.Kind)),
			zap.String("label", action.Target),
			zap.Int("retry_count", retryCount),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		state.Feedback = fmt.Sprintf("%s on [%s] failed (%s): %v", action.Kind, action.Target, execErr.Code, err)
		rec := l.buildRecord(state, StateActing, schemas.OutcomeFailure, &action, action.Target, execErr.Code, err.Error())
		rec.RetryCount = retryCount
		rec.Selector = state.Pending.Selector
		l.log.Record(rec)

		state.Pending = nil
		return l.toObserving(state), nil
	}

	state.Phase = StateReflecting
	rec := l.buildRecord(state, StateActing, schemas.OutcomeSuccess, &action, action.Target, "", "")
	rec.Selector = state.Pending.Selector
	l.log.Record(rec)
	return state, nil
}

func (l *Loop) stepReflecting(ctx context.Context, state State) (State, error) {
	post, err := l.extractor.Capture(ctx, l.session)
	if err != nil {
		if ctx.Err() != nil {
			return state, ctx.Err()
		}
		// The next Observing phase carries the extraction retry policy.
		l.record(state, StateReflecting, schemas.OutcomeFailure, nil, "", CodeReflectionFailure, err.Error())
		state.Pending = nil
		state.FinishClaimed = false
		return l.toObserving(state), nil
	}

	// An unchanged page needs no verdict: reflecting on the same snapshot
	// again would reach the same conclusion, so short-circuit deterministically.
	if !state.FinishClaimed && state.Pending != nil && post.Hash == state.Pending.PreHash {
		l.logger.Debug("Page unchanged after action, skipping verdict.", zap.String("hash", post.Hash))
		state.Feedback = "The last action did not change the page."
		l.record(state, StateReflecting, schemas.OutcomeSuccess, nil, "", "", "")
		state.Pending = nil
		return l.toObserving(state), nil
	}

	if err := l.waitTurn(ctx); err != nil {
		return state, err
	}
	v, err := l.reflector.judge(ctx, state, post)
	if err != nil {
		if ctx.Err() != nil {
			return state, ctx.Err()
		}
		l.record(state, StateReflecting, schemas.OutcomeFailure, nil, "", CodeReflectionFailure, err.Error())
		state.Pending = nil
		state.FinishClaimed = false
		return l.toObserving(state), nil
	}

	switch v.Status {
	case verdictComplete:
		state.Phase = StateDone
		state.Result = v.Reason
		if state.FinishClaimed && state.Pending != nil && state.Pending.Action.Value != "" {
			state.Result = state.Pending.Action.Value
		}
		l.record(state, StateReflecting, schemas.OutcomeSuccess, nil, "", "", "")
		state.Pending = nil
		return state, nil

	case verdictStuck:
		state.Feedback = fmt.Sprintf("The current approach is stuck: %s. Try a different route.", v.Reason)
	default: // continue
		if state.FinishClaimed {
			state.Feedback = fmt.Sprintf("FINISH was premature: %s", v.Reason)
		}
	}

	l.record(state, StateReflecting, schemas.OutcomeSuccess, nil, "", "", "")
	state.Pending = nil
	state.FinishClaimed = false
	return l.toObserving(state), nil
}

// toObserving advances the iteration counter and returns to observation.
func (l *Loop) toObserving(state State) State {
	state.Iteration++
	state.Phase = StateObserving
	return state
}

// waitTurn blocks on the shared LLM rate limiter.
func (l *Loop) waitTurn(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

func (l *Loop) buildRecord(state State, phase LoopPhase, outcome schemas.Outcome, action *schemas.Action, label string, code ErrorCode, errMsg string) schemas.AttemptRecord {
	rec := schemas.AttemptRecord{
		ID:           uuidNewString(),
		SessionID:    state.SessionID,
		Iteration:    state.Iteration,
		Phase:        recordPhase(phase),
		ElementLabel: label,
		Outcome:      outcome,
		Error:        errMsg,
		ErrorCode:    string(code),
		Timestamp:    time.Now().UTC(),
	}
	if action != nil {
		rec.ActionKind = action.Kind
	}
	if state.Snapshot != nil {
		rec.PageURL = state.Snapshot.URL
	}
	return rec
}

// record appends one attempt record for the transition just taken.
func (l *Loop) record(state State, phase LoopPhase, outcome schemas.Outcome, action *schemas.Action, label string, code ErrorCode, errMsg string) {
	l.log.Record(l.buildRecord(state, phase, outcome, action, label, code, errMsg))
}

// planningFeedback renders the corrective context for a rejected response.
func planningFeedback(planErr *PlanningError, raw string) string {
	if raw == "" {
		raw = planErr.Raw
	}
	if raw == "" {
		return fmt.Sprintf("%s: %v", planErr.Code, planErr.Err)
	}
	const maxRaw = 2 * 1024
	raw = schemas.TruncateText(raw, maxRaw)
	return fmt.Sprintf("%s: %v\nYour response was:\n%s", planErr.Code, planErr.Err, raw)
}

// sleepCtx pauses for d, honoring cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
