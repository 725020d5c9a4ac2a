// Package browser implements the diagnostics ports against a live page by
// evaluating JavaScript over the DevTools Protocol.
package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Page runs actions against one attached tab.
type Page struct {
	targetCtx context.Context
	timeout   time.Duration
}

// NewPage wraps a chromedp target context.
func NewPage(targetCtx context.Context, timeout time.Duration) *Page {
	return &Page{
		targetCtx: targetCtx,
		timeout:   timeout,
	}
}

// Run executes actions on the tab. The caller's deadline and cancellation
// apply; without a deadline the page timeout does.
func (p *Page) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := p.runContext(ctx, true)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// RunUntilSettled executes actions with no page timeout. Only the caller's
// deadline or cancellation stops them, so speech may take as long as it needs.
func (p *Page) RunUntilSettled(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := p.runContext(ctx, false)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// runContext derives a context on the target that ends with ctx. When bounded
// and ctx has no deadline, the page timeout is added.
func (p *Page) runContext(ctx context.Context, bounded bool) (context.Context, context.CancelFunc) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(p.targetCtx, deadline)
	} else if bounded {
		runCtx, cancel = context.WithTimeout(p.targetCtx, p.timeout)
	} else {
		runCtx, cancel = context.WithCancel(p.targetCtx)
	}

	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// Evaluate runs a script, awaiting a returned promise, and decodes its
// JSON-serializable result into out.
func (p *Page) Evaluate(ctx context.Context, script string, out interface{}) error {
	return p.Run(ctx, chromedp.Evaluate(script, out, awaitPromise))
}

// EvaluateUntilSettled is Evaluate without the page timeout.
func (p *Page) EvaluateUntilSettled(ctx context.Context, script string, out interface{}) error {
	return p.RunUntilSettled(ctx, chromedp.Evaluate(script, out, awaitPromise))
}

// Title returns the current page title.
func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.Run(ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// URL returns the current page URL.
func (p *Page) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.Run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}
