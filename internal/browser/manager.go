// internal/browser/manager.go

// Package browser owns the Chrome process lifecycle and exposes per-tab
// sessions implementing schemas.SessionContext. Sessions perform exactly what
// they are asked and report failure; retry policy belongs to the caller.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/internal/config"
)

// Manager handles the browser process lifecycle and session creation over a
// shared chromedp exec allocator. Initialization is deferred until the first
// session is requested.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	allocCtx    context.Context
	allocCancel context.CancelFunc

	sessions map[string]*Session
	mu       sync.RWMutex
	wg       sync.WaitGroup

	initOnce sync.Once
}

// NewManager creates a browser manager. The Chrome process starts lazily with
// the first NewSession call.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		logger:   logger.Named("browser_manager"),
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// buildAllocatorOptions translates browser config into chromedp allocator
// options.
func buildAllocatorOptions(cfg *config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		// Required on hardened systems where the Chrome sandbox cannot start.
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)

	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}

	for _, arg := range cfg.Args {
		arg = strings.TrimPrefix(arg, "--")
		if key, value, found := strings.Cut(arg, "="); found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(arg, true))
		}
	}
	return opts
}

func (m *Manager) initialize(ctx context.Context) {
	m.initOnce.Do(func() {
		m.logger.Info("Initializing browser allocator.",
			zap.Bool("headless", m.cfg.Browser.Headless),
			zap.Int("window_width", m.cfg.Browser.WindowWidth),
			zap.Int("window_height", m.cfg.Browser.WindowHeight),
		)
		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(ctx, buildAllocatorOptions(&m.cfg.Browser)...)
	})
}

// NewSession opens a fresh browser tab and returns its session. The first
// call also launches the Chrome process.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	m.initialize(ctx)

	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx)
	// Run an empty task to force tab (and on first use, browser) startup.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("starting browser tab: %w", err)
	}

	// A native alert/confirm/prompt dialog blocks every subsequent CDP call
	// on the tab, so accept them as they appear.
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if _, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			go func() {
				if err := chromedp.Run(tabCtx, page.HandleJavaScriptDialog(true)); err != nil {
					m.logger.Debug("Dismissing page dialog failed.", zap.Error(err))
				}
			}()
		}
	})

	sess := newSession(tabCtx, tabCancel, &m.cfg.Browser, m.logger)

	m.mu.Lock()
	m.sessions[sess.ID()] = sess
	m.mu.Unlock()
	m.wg.Add(1)

	sess.onClose = func() {
		m.mu.Lock()
		delete(m.sessions, sess.ID())
		m.mu.Unlock()
		m.wg.Done()
	}

	m.logger.Info("Browser session created.", zap.String("session_id", sess.ID()))
	return sess, nil
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown closes all live sessions and tears down the Chrome process.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.RUnlock()

	for _, s := range open {
		if err := s.Close(ctx); err != nil {
			m.logger.Warn("Session close failed during shutdown.",
				zap.String("session_id", s.ID()), zap.Error(err))
		}
	}
	m.wg.Wait()

	if m.allocCancel != nil {
		m.allocCancel()
	}
	m.logger.Info("Browser manager shut down.")
}
