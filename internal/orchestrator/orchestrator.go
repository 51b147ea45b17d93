// File: internal/orchestrator/orchestrator.go
// Description: Runs one or more agent sessions to completion. It is injected
// with fully configured components via interfaces, making it decoupled and
// testable.

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/agent"
	"github.com/webpilot-ai/webpilot/internal/browser"
	"github.com/webpilot-ai/webpilot/internal/config"
	"github.com/webpilot-ai/webpilot/internal/memory"
	"github.com/webpilot-ai/webpilot/internal/snapshot"
	"github.com/webpilot-ai/webpilot/internal/store"
)

// archiveTimeout bounds the post-run database write.
const archiveTimeout = 30 * time.Second

// Task is one session's assignment: a starting page and a natural-language
// goal.
type Task struct {
	URL  string `json:"url"`
	Task string `json:"task"`
}

// SessionFactory opens a fresh browser tab. browser.Manager.NewSession is the
// production implementation.
type SessionFactory func(ctx context.Context) (schemas.SessionContext, error)

// Archiver persists a finished session's history. Implemented by store.Store;
// nil disables archival.
type Archiver interface {
	ArchiveSession(ctx context.Context, summary store.SessionSummary, records []schemas.AttemptRecord) error
}

// SessionResult is the terminal outcome of one session.
type SessionResult struct {
	SessionID     string
	Task          Task
	Phase         agent.LoopPhase
	Result        string
	FailureReason string
	Iterations    int
}

// Orchestrator fans tasks out over concurrent sessions. Each session owns its
// state and memory exclusively; only the LLM rate limiter is shared.
type Orchestrator struct {
	cfg        *config.Config
	logger     *zap.Logger
	llm        schemas.LLMClient
	newSession SessionFactory
	archiver   Archiver
	limiter    *rate.Limiter
}

// New creates an Orchestrator with its dependencies provided explicitly.
// archiver may be nil when the durable store is disabled.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	llm schemas.LLMClient,
	newSession SessionFactory,
	archiver Archiver,
) (*Orchestrator, error) {
	if cfg == nil || logger == nil || llm == nil || newSession == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}

	var limiter *rate.Limiter
	if rps := cfg.Agent.LLMRequestsPerSecond; rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	return &Orchestrator{
		cfg:        cfg,
		logger:     logger.Named("orchestrator"),
		llm:        llm,
		newSession: newSession,
		archiver:   archiver,
		limiter:    limiter,
	}, nil
}

// Run executes every task and collects a result per task, in order. A session
// that ends Failed is a normal outcome and does not abort its siblings; Run
// returns an error only when a session could not run at all (tab creation,
// initial navigation, cancellation).
func (o *Orchestrator) Run(ctx context.Context, tasks []Task) ([]SessionResult, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no tasks to run")
	}

	o.logger.Info("Starting sessions.",
		zap.Int("tasks", len(tasks)),
		zap.Int("max_concurrent", o.cfg.Agent.MaxConcurrentSessions),
	)

	results := make([]SessionResult, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Agent.MaxConcurrentSessions)

	for i, task := range tasks {
		g.Go(func() error {
			res, err := o.runSession(gctx, task)
			results[i] = res
			return err
		})
	}

	err := g.Wait()
	return results, err
}

func (o *Orchestrator) runSession(ctx context.Context, task Task) (SessionResult, error) {
	res := SessionResult{Task: task}

	session, err := o.newSession(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		if closeErr := session.Close(context.Background()); closeErr != nil {
			o.logger.Warn("Failed to close session.", zap.String("session_id", session.ID()), zap.Error(closeErr))
		}
	}()

	res.SessionID = session.ID()
	log := memory.NewLog(session.ID(), o.cfg.Agent.ElementRetryCeiling)
	sessionLogger := o.logger.With(zap.String("session_id", session.ID()))

	sessionLogger.Info("Session starting.", zap.String("url", task.URL), zap.String("task", task.Task))

	if err := session.Navigate(ctx, task.URL); err != nil {
		return res, fmt.Errorf("initial navigation to %s failed: %w", task.URL, err)
	}

	loop := agent.NewLoop(
		o.cfg.Agent,
		o.logger,
		o.llm,
		snapshot.NewExtractor(sessionLogger, o.cfg.Browser.HighlightElements),
		browser.NewExecutor(sessionLogger),
		session,
		log,
		o.limiter,
	)

	final, runErr := loop.Run(ctx, agent.NewState(session.ID(), task.Task))
	res.Phase = final.Phase
	res.Result = final.Result
	res.FailureReason = final.FailureReason
	res.Iterations = final.Iteration

	// Persistence and archival are best-effort even when the run was cut
	// short, so a cancelled session still leaves its trail.
	o.persist(log, sessionLogger)
	o.archive(final, log, sessionLogger)

	if runErr != nil {
		return res, fmt.Errorf("session %s aborted: %w", session.ID(), runErr)
	}
	return res, nil
}

func (o *Orchestrator) persist(log *memory.Log, logger *zap.Logger) {
	if !o.cfg.Agent.PersistState || o.cfg.Agent.StateDir == "" {
		return
	}
	if err := memory.Persist(log, o.cfg.Agent.StateDir); err != nil {
		logger.Warn("Failed to persist session memory.", zap.Error(err))
	}
}

func (o *Orchestrator) archive(final agent.State, log *memory.Log, logger *zap.Logger) {
	if o.archiver == nil {
		return
	}
	summary := store.SessionSummary{
		ID:         final.SessionID,
		Task:       final.Task,
		FinalPhase: string(final.Phase),
		Result:     final.Result,
		Iterations: final.Iteration,
	}
	// The run context may already be cancelled; archival gets its own.
	archiveCtx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := o.archiver.ArchiveSession(archiveCtx, summary, log.All()); err != nil {
		logger.Warn("Failed to archive session.", zap.Error(err))
	}
}
