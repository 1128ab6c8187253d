// Package daemon provides background services that keep a browser session warm.
package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/neboloop/chatdriver/internal/logging"
)

// Pinger checks the session and recovers it if needed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KeepaliveConfig configures the keepalive loop
type KeepaliveConfig struct {
	Interval     time.Duration // How often to ping (default: 1 minute)
	InitialDelay time.Duration // Delay before first ping (default: 0 = one interval)
	Timeout      time.Duration // Bound on a single ping (default: 30 seconds)
	Logger       *slog.Logger
	OnError      func(err error) // optional
}

// Keepalive periodically pings a session so a dead page is noticed and reconnected
// between user turns rather than on the next send.
type Keepalive struct {
	cfg    KeepaliveConfig
	pinger Pinger
	logger *slog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewKeepalive creates a keepalive loop for pinger
func NewKeepalive(pinger Pinger, cfg KeepaliveConfig) *Keepalive {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = cfg.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Keepalive{
		cfg:    cfg,
		pinger: pinger,
		logger: logging.Component(cfg.Logger, "keepalive"),
	}
}

// Start begins the keepalive loop
func (k *Keepalive) Start(ctx context.Context) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.running {
		return
	}
	k.running = true
	k.stopCh = make(chan struct{})
	k.doneCh = make(chan struct{})

	go k.run(ctx, k.stopCh, k.doneCh)
}

// Stop ends the loop and waits for an in-flight ping to finish
func (k *Keepalive) Stop() {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return
	}
	k.running = false
	stopCh, doneCh := k.stopCh, k.doneCh
	k.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (k *Keepalive) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	select {
	case <-ctx.Done():
		return
	case <-stopCh:
		return
	case <-time.After(k.cfg.InitialDelay):
	}

	k.tick(ctx)

	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			k.tick(ctx)
		}
	}
}

// tick runs one ping
func (k *Keepalive) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, k.cfg.Timeout)
	defer cancel()

	if err := k.pinger.Ping(ctx); err != nil {
		k.logger.Warn("keepalive ping failed", "error", err)
		if k.cfg.OnError != nil {
			k.cfg.OnError(err)
		}
		return
	}
	k.logger.Debug("keepalive ok")
}
