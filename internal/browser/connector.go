package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/neboloop/chatdriver/internal/logging"
)

// Handle is a live CDP connection bound to one page of the daemon.
type Handle interface {
	// Evaluate runs expr in the page and decodes the result into out (nil discards it).
	// Promises are awaited.
	Evaluate(ctx context.Context, expr string, out any) error
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)

	// Close drops the transport. The browser keeps running.
	Close() error

	// Shutdown asks the browser to exit over CDP and drops the transport.
	Shutdown(ctx context.Context) error

	Closed() bool
}

// Connector attaches to a running daemon.
type Connector interface {
	Connect(ctx context.Context, endpoint string) (Handle, error)
}

// ConnectorFunc adapts a function to a Connector.
type ConnectorFunc func(ctx context.Context, endpoint string) (Handle, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context, endpoint string) (Handle, error) {
	return f(ctx, endpoint)
}

// NewConnector returns the connector for a driver name. The result remembers the handle
// it produced per endpoint and hands it back while it is still open.
func NewConnector(driver string, logger *slog.Logger) (Connector, error) {
	logger = logging.Component(logger, "connector")

	var dial ConnectorFunc
	switch driver {
	case "", DriverChromedp:
		dial = connectChromedp
	case DriverPlaywright:
		dial = connectPlaywright
	default:
		return nil, fmt.Errorf("unknown driver: %s", driver)
	}

	return NewCachingConnector(ConnectorFunc(func(ctx context.Context, endpoint string) (Handle, error) {
		h, err := dial(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		logger.Debug("attached", "driver", driver, "endpoint", endpoint)
		return newAuditedHandle(h, logger), nil
	})), nil
}

// CachingConnector makes repeated Connect calls for the same endpoint return the same
// open handle instead of dialing again.
type CachingConnector struct {
	mu      sync.Mutex
	dial    Connector
	handles map[string]Handle
}

// NewCachingConnector wraps dial.
func NewCachingConnector(dial Connector) *CachingConnector {
	return &CachingConnector{
		dial:    dial,
		handles: make(map[string]Handle),
	}
}

// Connect implements Connector.
func (c *CachingConnector) Connect(ctx context.Context, endpoint string) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.handles[endpoint]; ok {
		if !h.Closed() {
			return h, nil
		}
		delete(c.handles, endpoint)
	}

	h, err := c.dial.Connect(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	c.handles[endpoint] = h
	return h, nil
}
