package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/neboloop/chatdriver/internal/browser"
)

type fakeLauncher struct {
	mu        sync.Mutex
	ensures   int
	stops     int
	ensureErr error
}

func (l *fakeLauncher) Ensure(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensures++
	return l.ensureErr
}

func (l *fakeLauncher) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stops++
	return nil
}

func (l *fakeLauncher) Endpoint() string { return browser.DefaultEndpoint }

type fakeHandle struct {
	mu        sync.Mutex
	url       string
	navigated []string
	closed    bool
	shutdown  bool
	navErr    error
}

func (h *fakeHandle) Evaluate(ctx context.Context, expr string, out any) error { return nil }

func (h *fakeHandle) Navigate(ctx context.Context, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.navErr != nil {
		return h.navErr
	}
	h.navigated = append(h.navigated, url)
	h.url = url
	return nil
}

func (h *fakeHandle) URL(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url, nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHandle) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdown = true
	h.closed = true
	return nil
}

func (h *fakeHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// fakeConnector hands out a fresh handle per call and can fail the first N calls.
type fakeConnector struct {
	mu      sync.Mutex
	calls   int
	failN   int
	handles []*fakeHandle
	url     string
	navErr  error
}

func (c *fakeConnector) Connect(ctx context.Context, endpoint string) (browser.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls <= c.failN || c.failN < 0 {
		return nil, &browser.ConnectError{Endpoint: endpoint, Err: errors.New("connection refused")}
	}
	h := &fakeHandle{url: c.url, navErr: c.navErr}
	c.handles = append(c.handles, h)
	return h, nil
}

func (c *fakeConnector) connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

func (c *fakeConnector) last() *fakeHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.handles) == 0 {
		return nil
	}
	return c.handles[len(c.handles)-1]
}

// fakeHealth answers from a queue, then falls back to Default.
type fakeHealth struct {
	mu      sync.Mutex
	answers []bool
	Default bool
	calls   int
}

func (f *fakeHealth) IsAlive(ctx context.Context, h browser.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if h == nil || h.Closed() {
		return false
	}
	if len(f.answers) > 0 {
		a := f.answers[0]
		f.answers = f.answers[1:]
		return a
	}
	return f.Default
}

func (f *fakeHealth) push(answers ...bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answers...)
}

// fakeDeliverer replies from a script of results, one per call.
type fakeDeliverer struct {
	mu      sync.Mutex
	results []deliverResult
	calls   int
	block   bool
	thread  string
	prompts []string
}

type deliverResult struct {
	reply string
	err   error
}

func (d *fakeDeliverer) Deliver(ctx context.Context, h browser.Handle, text string) (string, error) {
	d.mu.Lock()
	d.calls++
	d.prompts = append(d.prompts, text)
	block := d.block
	var r deliverResult
	if len(d.results) > 0 {
		r = d.results[0]
		d.results = d.results[1:]
	} else {
		r = deliverResult{reply: "echo: " + text}
	}
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if r.err == nil && d.thread != "" {
		_ = h.Navigate(ctx, d.thread)
	}
	return r.reply, r.err
}

func (d *fakeDeliverer) ThreadURL(pageURL string) (string, bool) {
	if !strings.Contains(pageURL, "/c/") {
		return "", false
	}
	return pageURL, true
}

func (d *fakeDeliverer) StartURL() string { return "https://chat.example/" }

func (d *fakeDeliverer) lastPrompt() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.prompts) == 0 {
		return ""
	}
	return d.prompts[len(d.prompts)-1]
}

func (d *fakeDeliverer) deliveries() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// fakeProber and fakeProcess drive a real browser.Daemon.
type fakeProber struct{ up bool }

func (p *fakeProber) Reachable(ctx context.Context, endpoint string) bool { return p.up }

type fakeProcess struct {
	mu         sync.Mutex
	alive      map[int]bool
	terminated []int
}

func (p *fakeProcess) Start(spec browser.LaunchSpec) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive[777] = true
	return 777, nil
}

func (p *fakeProcess) Terminate(pid int, grace time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.alive, pid)
	p.terminated = append(p.terminated, pid)
	return nil
}

func (p *fakeProcess) Alive(pid int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive[pid]
}
