package browser

import (
	"context"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

type chromedpHandle struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// connectChromedp attaches to a remote browser and binds to its first page target,
// opening a new tab only when none exists.
func connectChromedp(ctx context.Context, endpoint string) (Handle, error) {
	base, err := HTTPBase(endpoint)
	if err != nil {
		return nil, &ConnectError{Endpoint: endpoint, Err: err}
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), base)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first call on a chromedp context fixes its lifetime, so it must not run on a
	// derived context. Bound it from the outside instead.
	targets, err := await(ctx, func() ([]*target.Info, error) {
		return chromedp.Targets(browserCtx)
	})
	if err != nil {
		allocCancel()
		return nil, &ConnectError{Endpoint: endpoint, Err: err}
	}

	// Cancelling the allocator tears down every derived context, so no tab is closed
	// on the error paths below.
	tabCtx, tabCancel := browserCtx, browserCancel
	for _, t := range targets {
		if t.Type == "page" {
			tabCtx, tabCancel = chromedp.NewContext(browserCtx, chromedp.WithTargetID(t.TargetID))
			break
		}
	}

	// First Run attaches to the target (or creates the tab).
	if _, err := await(ctx, func() (struct{}, error) {
		return struct{}{}, chromedp.Run(tabCtx)
	}); err != nil {
		allocCancel()
		return nil, &ConnectError{Endpoint: endpoint, Err: err}
	}

	return &chromedpHandle{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}, nil
}

// runBounded runs fn on a child of the chromedp context that is also cancelled when ctx is.
func runBounded[T any](ctx, cdpCtx context.Context, fn func(context.Context) (T, error)) (T, error) {
	runCtx, cancel := context.WithCancel(cdpCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	v, err := fn(runCtx)
	if err != nil && ctx.Err() != nil {
		return v, ctx.Err()
	}
	return v, err
}

func (h *chromedpHandle) run(ctx context.Context, actions ...chromedp.Action) error {
	if h.Closed() {
		return ErrHandleClosed
	}
	_, err := runBounded(ctx, h.tabCtx, func(c context.Context) (struct{}, error) {
		return struct{}{}, chromedp.Run(c, actions...)
	})
	return err
}

func (h *chromedpHandle) Evaluate(ctx context.Context, expr string, out any) error {
	if out == nil {
		var discard *runtime.RemoteObject
		out = &discard
	}
	return h.run(ctx, chromedp.Evaluate(expr, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

func (h *chromedpHandle) Navigate(ctx context.Context, url string) error {
	return h.run(ctx, chromedp.Navigate(url))
}

func (h *chromedpHandle) URL(ctx context.Context) (string, error) {
	var loc string
	if err := h.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Close cancels the remote allocator only, which drops the websocket without
// closing the tab or the browser.
func (h *chromedpHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.allocCancel()
	return nil
}

func (h *chromedpHandle) Shutdown(ctx context.Context) error {
	err := h.run(ctx, cdpbrowser.Close())
	h.tabCancel()
	_ = h.Close()
	return err
}

func (h *chromedpHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed || h.allocCtx.Err() != nil
}
