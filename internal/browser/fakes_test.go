package browser

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type fakeProber struct {
	reachable atomic.Bool
	calls     atomic.Int32
}

func (p *fakeProber) Reachable(ctx context.Context, endpoint string) bool {
	p.calls.Add(1)
	return p.reachable.Load()
}

type fakeProcess struct {
	mu         sync.Mutex
	startErr   error
	termErr    error
	onStart    func()
	started    []LaunchSpec
	terminated []int
	alive      map[int]bool
	nextPID    int
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{alive: make(map[int]bool), nextPID: 4242}
}

func (p *fakeProcess) Start(spec LaunchSpec) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return 0, p.startErr
	}
	p.started = append(p.started, spec)
	pid := p.nextPID
	p.nextPID++
	p.alive[pid] = true
	if p.onStart != nil {
		p.onStart()
	}
	return pid, nil
}

func (p *fakeProcess) Terminate(pid int, grace time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated = append(p.terminated, pid)
	if p.termErr != nil {
		return p.termErr
	}
	delete(p.alive, pid)
	return nil
}

func (p *fakeProcess) Alive(pid int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive[pid]
}

func (p *fakeProcess) startCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.started)
}

// fakeHandle evaluates against a canned result.
type fakeHandle struct {
	mu       sync.Mutex
	result   any
	err      error
	delay    time.Duration
	url      string
	closed   bool
	shutdown bool
}

func (h *fakeHandle) Evaluate(ctx context.Context, expr string, out any) error {
	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	if h.err != nil {
		return h.err
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(h.result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (h *fakeHandle) Navigate(ctx context.Context, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
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

var errBoom = errors.New("boom")
