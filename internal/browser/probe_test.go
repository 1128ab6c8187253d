package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestIsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"Browser":"Chrome/120","webSocketDebuggerUrl":"ws://127.0.0.1/devtools/browser/abc"}`))
	}))
	defer srv.Close()

	ws := "ws://" + strings.TrimPrefix(srv.URL, "http://")
	for _, endpoint := range []string{srv.URL, ws, strings.TrimPrefix(srv.URL, "http://")} {
		if !IsReachable(context.Background(), endpoint, time.Second) {
			t.Errorf("IsReachable(%q) = false, want true", endpoint)
		}
	}

	got, err := WebSocketURL(context.Background(), ws, time.Second)
	if err != nil {
		t.Fatalf("WebSocketURL: %v", err)
	}
	if got != "ws://127.0.0.1/devtools/browser/abc" {
		t.Errorf("WebSocketURL = %q", got)
	}
}

func TestIsReachableFailures(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name     string
		endpoint string
	}{
		{"non-200", failing.URL},
		{"timeout", slow.URL},
		{"refused", closedURL},
		{"garbage", "::not a url"},
		{"bad scheme", "ftp://127.0.0.1:9222"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if IsReachable(context.Background(), tt.endpoint, 100*time.Millisecond) {
				t.Errorf("IsReachable(%q) = true, want false", tt.endpoint)
			}
		})
	}
}

func TestHTTPProberCapsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := HTTPProber{Timeout: time.Hour}
	if !p.Reachable(context.Background(), srv.URL) {
		t.Fatal("expected reachable")
	}
}

func TestHTTPBase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ws://127.0.0.1:9222", "http://127.0.0.1:9222"},
		{"ws://127.0.0.1:9222/devtools/browser/abc", "http://127.0.0.1:9222"},
		{"wss://example.com:443", "https://example.com:443"},
		{"http://localhost:9222/", "http://localhost:9222"},
		{"127.0.0.1:9333", "http://127.0.0.1:9333"},
	}
	for _, tt := range tests {
		got, err := HTTPBase(tt.in)
		if err != nil {
			t.Errorf("HTTPBase(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("HTTPBase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEndpointForPort(t *testing.T) {
	if got := EndpointForPort(0); got != DefaultEndpoint {
		t.Errorf("EndpointForPort(0) = %q", got)
	}
	if got := EndpointForPort(9333); got != "ws://127.0.0.1:9333" {
		t.Errorf("EndpointForPort(9333) = %q", got)
	}
}
