package browser

import (
	"context"
	"log/slog"
	"time"
)

// sensitiveCommands are CDP methods that act on the page rather than observe it.
var sensitiveCommands = map[string]bool{
	"Page.navigate": true,
	"Browser.close": true,
}

// auditedHandle logs every CDP call a Handle makes.
type auditedHandle struct {
	Handle
	logger *slog.Logger
}

func newAuditedHandle(h Handle, logger *slog.Logger) Handle {
	return &auditedHandle{Handle: h, logger: logger}
}

func (a *auditedHandle) logCommand(method string, start time.Time, err error, attrs ...any) {
	attrs = append(attrs,
		"method", method,
		"duration", time.Since(start),
	)
	if err != nil {
		a.logger.Debug("cdp_command_failed", append(attrs, "error", err)...)
		return
	}
	if sensitiveCommands[method] {
		a.logger.Info("cdp_sensitive_command", attrs...)
	} else {
		a.logger.Debug("cdp_command", attrs...)
	}
}

func (a *auditedHandle) Evaluate(ctx context.Context, expr string, out any) error {
	start := time.Now()
	err := a.Handle.Evaluate(ctx, expr, out)
	a.logCommand("Runtime.evaluate", start, err, "bytes", len(expr))
	return err
}

func (a *auditedHandle) Navigate(ctx context.Context, url string) error {
	start := time.Now()
	err := a.Handle.Navigate(ctx, url)
	a.logCommand("Page.navigate", start, err, "url", url)
	return err
}

func (a *auditedHandle) Shutdown(ctx context.Context) error {
	start := time.Now()
	err := a.Handle.Shutdown(ctx)
	a.logCommand("Browser.close", start, err)
	return err
}
