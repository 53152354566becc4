// Package browser provides the chromedp-backed implementation of page.Page.
// A session either launches a local Chromium or attaches to an already
// running browser over the DevTools protocol. The latter is the normal mode,
// since extraction runs against the user's signed-in portal tab.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"eirbridge/internal/page"
)

// Session owns one browser target and its chromedp contexts.
type Session struct {
	ctx     context.Context
	cancels []context.CancelFunc
	logger  *logrus.Logger
}

// NewSession launches a local Chromium and opens a fresh target.
func NewSession(parent context.Context, logger *logrus.Logger) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	return newSession(ctx, logger, cancel, allocCancel)
}

// NewRemoteSession attaches to a running browser via its DevTools websocket
// URL, so extraction can drive the user's existing signed-in portal tab.
func NewRemoteSession(parent context.Context, devtoolsURL string, logger *logrus.Logger) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(parent, devtoolsURL)
	ctx, cancel := chromedp.NewContext(allocCtx)

	return newSession(ctx, logger, cancel, allocCancel)
}

func newSession(ctx context.Context, logger *logrus.Logger, cancels ...context.CancelFunc) (*Session, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// Start the target so later actions have a live page.
	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	defer startCancel()
	if err := chromedp.Run(startCtx); err != nil {
		for _, cancel := range cancels {
			cancel()
		}
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	return &Session{ctx: ctx, cancels: cancels, logger: logger}, nil
}

// Navigate loads a URL in the session's target.
func (s *Session) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := mergeDeadline(s.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Screenshot captures the current viewport as PNG, for diagnosing selector
// drift when a portal changes its markup.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	runCtx, cancel := mergeDeadline(s.ctx, ctx)
	defer cancel()

	var buf []byte
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = cdppage.CaptureScreenshot().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	s.logger.WithField("bytes", len(buf)).Debug("captured page screenshot")
	return buf, nil
}

// Page returns the live-document view of this session.
func (s *Session) Page() page.Page {
	return &chromePage{session: s}
}

// Close tears the session down.
func (s *Session) Close() {
	for i := len(s.cancels) - 1; i >= 0; i-- {
		s.cancels[i]()
	}
}

func (s *Session) evaluate(ctx context.Context, expr string, out any) error {
	runCtx, cancel := mergeDeadline(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Evaluate(expr, out))
}

// mergeDeadline applies the caller context's deadline/cancellation to the
// session context chromedp requires.
func mergeDeadline(sessionCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(sessionCtx)
	stop := context.AfterFunc(callerCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// chromePage implements page.Page by evaluating DOM expressions in the
// target. Elements are pinned into a window-scoped array so they survive
// across calls; an element that drops out of the document resolves to null
// and surfaces as an error the extractor tolerates.
type chromePage struct {
	session *Session
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.session.evaluate(ctx, "window.location.href", &url); err != nil {
		return "", err
	}
	return url, nil
}

func (p *chromePage) Query(ctx context.Context, selector string) ([]page.Element, error) {
	expr := fmt.Sprintf(`(() => {
		%s
		const ids = [];
		for (const el of document.querySelectorAll(%s)) ids.push(__eirPin(el));
		return ids;
	})()`, pinHelper, jsString(selector))

	var ids []int
	if err := p.session.evaluate(ctx, expr, &ids); err != nil {
		return nil, err
	}
	elements := make([]page.Element, len(ids))
	for i, id := range ids {
		elements[i] = &chromeElement{page: p, id: id}
	}
	return elements, nil
}

func (p *chromePage) QueryFirst(ctx context.Context, selector string) (page.Element, bool, error) {
	return p.pin(ctx, fmt.Sprintf("document.querySelector(%s)", jsString(selector)))
}

func (p *chromePage) ChildCount(ctx context.Context, selector string) (int, error) {
	expr := fmt.Sprintf(`(el => el ? el.children.length : 0)(document.querySelector(%s))`, jsString(selector))
	var n int
	if err := p.session.evaluate(ctx, expr, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// pin evaluates an expression producing an element and pins it, returning
// the wrapped element or not-found.
func (p *chromePage) pin(ctx context.Context, elemExpr string) (page.Element, bool, error) {
	expr := fmt.Sprintf(`(() => { %s return __eirPin(%s); })()`, pinHelper, elemExpr)
	var id int
	if err := p.session.evaluate(ctx, expr, &id); err != nil {
		return nil, false, err
	}
	if id < 0 {
		return nil, false, nil
	}
	return &chromeElement{page: p, id: id}, true, nil
}

// pinHelper keeps matched DOM nodes addressable across evaluations.
const pinHelper = `
	window.__eirNodes = window.__eirNodes || [];
	const __eirPin = (el) => {
		if (!el) return -1;
		let i = window.__eirNodes.indexOf(el);
		if (i === -1) i = window.__eirNodes.push(el) - 1;
		return i;
	};`

type chromeElement struct {
	page *chromePage
	id   int
}

func (e *chromeElement) ref() string {
	return fmt.Sprintf("window.__eirNodes[%d]", e.id)
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	expr := fmt.Sprintf(`(n => n ? (n.textContent || n.innerText || "") : null)(%s)`, e.ref())
	var text *string
	if err := e.page.session.evaluate(ctx, expr, &text); err != nil {
		return "", err
	}
	if text == nil {
		return "", fmt.Errorf("element no longer in document")
	}
	return *text, nil
}

func (e *chromeElement) Click(ctx context.Context) error {
	expr := fmt.Sprintf(`(n => { if (!n) return false; n.click(); return true; })(%s)`, e.ref())
	var clicked bool
	if err := e.page.session.evaluate(ctx, expr, &clicked); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("element no longer in document")
	}
	return nil
}

func (e *chromeElement) Visible(ctx context.Context) (bool, error) {
	expr := fmt.Sprintf(`(n => !!(n && n.offsetParent !== null))(%s)`, e.ref())
	var visible bool
	if err := e.page.session.evaluate(ctx, expr, &visible); err != nil {
		return false, err
	}
	return visible, nil
}

func (e *chromeElement) Disabled(ctx context.Context) (bool, error) {
	expr := fmt.Sprintf(`(n => !!(n && n.disabled))(%s)`, e.ref())
	var disabled bool
	if err := e.page.session.evaluate(ctx, expr, &disabled); err != nil {
		return false, err
	}
	return disabled, nil
}

func (e *chromeElement) QueryFirst(ctx context.Context, selector string) (page.Element, bool, error) {
	return e.page.pin(ctx, fmt.Sprintf("(n => n ? n.querySelector(%s) : null)(%s)", jsString(selector), e.ref()))
}

func (e *chromeElement) Closest(ctx context.Context, selector string) (page.Element, bool, error) {
	return e.page.pin(ctx, fmt.Sprintf("(n => n ? n.closest(%s) : null)(%s)", jsString(selector), e.ref()))
}

func (e *chromeElement) Parent(ctx context.Context) (page.Element, bool, error) {
	return e.page.pin(ctx, fmt.Sprintf("(n => n ? n.parentElement : null)(%s)", e.ref()))
}

// jsString embeds a Go string into a JS expression as a quoted literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
