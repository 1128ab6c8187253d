package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Prober checks whether a control endpoint answers.
type Prober interface {
	Reachable(ctx context.Context, endpoint string) bool
}

// HTTPProber probes the DevTools JSON introspection endpoint.
type HTTPProber struct {
	Timeout time.Duration
	Client  *http.Client
}

// Reachable implements Prober.
func (p HTTPProber) Reachable(ctx context.Context, endpoint string) bool {
	timeout := p.Timeout
	if timeout <= 0 || timeout > DefaultProbeTimeout {
		timeout = DefaultProbeTimeout
	}
	return isReachable(ctx, p.Client, endpoint, timeout)
}

// IsReachable checks if the DevTools endpoint is responding. Any failure maps to false.
func IsReachable(ctx context.Context, endpoint string, timeout time.Duration) bool {
	return isReachable(ctx, nil, endpoint, timeout)
}

func isReachable(ctx context.Context, client *http.Client, endpoint string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := getVersion(ctx, client, endpoint)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// WebSocketURL reads the browser-level debugger URL from a running daemon.
func WebSocketURL(ctx context.Context, endpoint string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := getVersion(ctx, nil, endpoint)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}

	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return "", err
	}

	if version.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("no webSocketDebuggerUrl in response")
	}

	return version.WebSocketDebuggerURL, nil
}

func getVersion(ctx context.Context, client *http.Client, endpoint string) (*http.Response, error) {
	base, err := HTTPBase(endpoint)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/json/version", nil)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

// HTTPBase converts a control endpoint (ws://, wss://, http://, https:// or bare host:port)
// to the http(s) origin that serves the DevTools JSON API.
func HTTPBase(endpoint string) (string, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}

	scheme := "http"
	switch u.Scheme {
	case "wss", "https":
		scheme = "https"
	case "ws", "http":
	default:
		return "", fmt.Errorf("invalid endpoint %q: unsupported scheme %s", endpoint, u.Scheme)
	}
	return scheme + "://" + u.Host, nil
}

// EndpointForPort returns the loopback control endpoint for a CDP port.
func EndpointForPort(port int) string {
	if port == 0 {
		port = DefaultCDPPort
	}
	return fmt.Sprintf("ws://127.0.0.1:%d", port)
}
