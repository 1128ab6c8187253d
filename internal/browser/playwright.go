package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"
)

var (
	// Playwright driver instance (singleton)
	pwOnce     sync.Once
	pwInstance *playwright.Playwright
	pwErr      error
)

// getPlaywright starts the playwright driver once. Browsers are never downloaded:
// we only ever attach to the daemon over CDP.
func getPlaywright() (*playwright.Playwright, error) {
	pwOnce.Do(func() {
		opts := &playwright.RunOptions{SkipInstallBrowsers: true}
		if err := playwright.Install(opts); err != nil {
			pwErr = fmt.Errorf("failed to install playwright driver: %w", err)
			return
		}

		pw, err := playwright.Run(opts)
		if err != nil {
			pwErr = fmt.Errorf("failed to start playwright: %w", err)
			return
		}
		pwInstance = pw
	})

	return pwInstance, pwErr
}

type playwrightHandle struct {
	browser playwright.Browser
	page    playwright.Page

	mu     sync.Mutex
	closed bool
}

func connectPlaywright(ctx context.Context, endpoint string) (Handle, error) {
	pw, err := getPlaywright()
	if err != nil {
		return nil, &ConnectError{Endpoint: endpoint, Err: err}
	}

	base, err := HTTPBase(endpoint)
	if err != nil {
		return nil, &ConnectError{Endpoint: endpoint, Err: err}
	}

	b, err := await(ctx, func() (playwright.Browser, error) {
		return pw.Chromium.ConnectOverCDP(base)
	})
	if err != nil {
		return nil, &ConnectError{Endpoint: endpoint, Err: err}
	}

	page, err := firstPage(b)
	if err != nil {
		_ = b.Close()
		return nil, &ConnectError{Endpoint: endpoint, Err: err}
	}

	return &playwrightHandle{browser: b, page: page}, nil
}

// firstPage reuses the first page of the first context, else opens one.
func firstPage(b playwright.Browser) (playwright.Page, error) {
	contexts := b.Contexts()
	for _, bc := range contexts {
		if pages := bc.Pages(); len(pages) > 0 {
			return pages[0], nil
		}
	}
	if len(contexts) > 0 {
		return contexts[0].NewPage()
	}
	bc, err := b.NewContext()
	if err != nil {
		return nil, err
	}
	return bc.NewPage()
}

// await runs a blocking playwright call and gives up when ctx ends.
// The call itself keeps running in the background.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (h *playwrightHandle) Evaluate(ctx context.Context, expr string, out any) error {
	if h.Closed() {
		return ErrHandleClosed
	}
	v, err := await(ctx, func() (any, error) {
		return h.page.Evaluate(expr)
	})
	if err != nil || out == nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (h *playwrightHandle) Navigate(ctx context.Context, url string) error {
	if h.Closed() {
		return ErrHandleClosed
	}
	_, err := await(ctx, func() (playwright.Response, error) {
		return h.page.Goto(url)
	})
	return err
}

func (h *playwrightHandle) URL(ctx context.Context) (string, error) {
	if h.Closed() {
		return "", ErrHandleClosed
	}
	return h.page.URL(), nil
}

// Close disconnects. For a browser attached over CDP this leaves the browser running.
func (h *playwrightHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.browser.Close()
}

func (h *playwrightHandle) Shutdown(ctx context.Context) error {
	if h.Closed() {
		return ErrHandleClosed
	}
	_, err := await(ctx, func() (any, error) {
		session, err := h.browser.NewBrowserCDPSession()
		if err != nil {
			return nil, err
		}
		return session.Send("Browser.close", nil)
	})
	_ = h.Close()
	return err
}

func (h *playwrightHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed || !h.browser.IsConnected()
}
