package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Writer: &buf, Level: "warn"})

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message leaked at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn message missing: %s", out)
	}
}

func TestVerboseForcesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Writer: &buf, Level: "error", Verbose: true})
	logger.Debug("probe")
	if !strings.Contains(buf.String(), "probe") {
		t.Errorf("debug message missing in verbose mode: %s", buf.String())
	}
}

func TestComponentJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New(Options{Writer: &buf, JSON: true}), "daemon")
	logger.Info("started")
	if !strings.Contains(buf.String(), `"component":"daemon"`) {
		t.Errorf("component attribute missing: %s", buf.String())
	}

	// nil logger must not panic
	Component(nil, "x").Info("dropped")
}
