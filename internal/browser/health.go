package browser

import (
	"context"
	"time"
)

// HealthChecker answers whether a handle can still execute commands.
type HealthChecker interface {
	IsAlive(ctx context.Context, h Handle) bool
}

// EvalHealthChecker evaluates a trivial expression with a bounded wait.
type EvalHealthChecker struct {
	Timeout time.Duration
}

// IsAlive implements HealthChecker.
func (c EvalHealthChecker) IsAlive(ctx context.Context, h Handle) bool {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	return IsAlive(ctx, h, timeout)
}

// IsAlive evaluates 1 + 1 in the page and expects 2. A nil or closed handle, an error,
// or a timeout all report false. It never reconnects.
func IsAlive(ctx context.Context, h Handle, timeout time.Duration) bool {
	if h == nil || h.Closed() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var got int
	if err := h.Evaluate(ctx, "1 + 1", &got); err != nil {
		return false
	}
	return got == 2
}
