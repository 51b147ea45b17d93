// internal/browser/session.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/config"
)

// Session is one live browser tab. It implements schemas.SessionContext and
// carries no retry logic: every method issues its CDP commands once and
// reports the outcome.
type Session struct {
	id      string
	tabCtx  context.Context
	cancel  context.CancelFunc
	cfg     *config.BrowserConfig
	logger  *zap.Logger
	onClose func()

	closeOnce sync.Once
}

var _ schemas.SessionContext = (*Session)(nil)

func newSession(tabCtx context.Context, cancel context.CancelFunc, cfg *config.BrowserConfig, logger *zap.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		tabCtx: tabCtx,
		cancel: cancel,
		cfg:    cfg,
		logger: logger.Named("session").With(zap.String("session_id", id)),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// run executes chromedp actions against this tab, bounded by timeout and by
// the caller's context. The tab context survives individual operation
// failures; only Close tears it down.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opCtx, opCancel := context.WithTimeout(s.tabCtx, timeout)
	defer opCancel()
	stop := context.AfterFunc(ctx, opCancel)
	defer stop()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads the URL and waits for the document body, then pauses for the
// configured post-load settle time so late-rendering content is observable.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if s.cfg.PostLoadWait > 0 {
		actions = append(actions, chromedp.Sleep(s.cfg.PostLoadWait))
	}
	if err := s.run(ctx, s.cfg.NavigationTimeout, actions...); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

// Click waits for the selector to be visible and clicks it once.
func (s *Session) Click(ctx context.Context, selector string) error {
	s.logger.Debug("Clicking.", zap.String("selector", selector))
	err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("clicking %q: %w", selector, err)
	}
	return nil
}

// Type focuses the field, clears any existing value, and sends the text as
// keystrokes.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	s.logger.Debug("Typing.", zap.String("selector", selector), zap.Int("text_len", len(text)))
	err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("typing into %q: %w", selector, err)
	}
	return nil
}

// ScrollTo brings the element into the viewport.
func (s *Session) ScrollTo(ctx context.Context, selector string) error {
	err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("scrolling to %q: %w", selector, err)
	}
	return nil
}

// ScrollBy scrolls the window vertically by deltaY CSS pixels.
func (s *Session) ScrollBy(ctx context.Context, deltaY float64) error {
	script := fmt.Sprintf("window.scrollBy(0, %f); true", deltaY)
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("scrolling by %.0fpx: %w", deltaY, err)
	}
	return nil
}

// WaitVisible blocks until the selector is visible or the timeout elapses.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.cfg.ActionTimeout
	}
	err := s.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil {
		return fmt.Errorf("waiting for %q: %w", selector, err)
	}
	return nil
}

// Screenshot captures the viewport to a timestamped PNG under the configured
// screenshot directory.
func (s *Session) Screenshot(ctx context.Context, prefix string) (*schemas.ScreenshotResult, error) {
	var buf []byte
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}

	dir := s.cfg.ScreenshotDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating screenshot dir: %w", err)
	}

	takenAt := time.Now().UTC()
	if prefix == "" {
		prefix = "screenshot"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", prefix, takenAt.Format("20060102T150405.000")))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return nil, fmt.Errorf("writing screenshot: %w", err)
	}

	s.logger.Debug("Screenshot captured.", zap.String("path", path))
	return &schemas.ScreenshotResult{Path: path, TakenAt: takenAt}, nil
}

// ExecuteScript evaluates a JavaScript expression in the page and returns the
// raw JSON result.
func (s *Session) ExecuteScript(ctx context.Context, script string) (json.RawMessage, error) {
	var raw []byte
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(script, &raw)); err != nil {
		return nil, fmt.Errorf("evaluating script: %w", err)
	}
	return json.RawMessage(raw), nil
}

// CurrentURL returns the tab's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	return url, nil
}

// Title returns the current document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("reading title: %w", err)
	}
	return title, nil
}

// Close tears down the tab. Safe to call more than once.
func (s *Session) Close(context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Debug("Closing session.")
		s.cancel()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}
