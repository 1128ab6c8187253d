package sites

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neboloop/chatdriver/internal/browser"
	"github.com/neboloop/chatdriver/internal/logging"
)

// ErrInputNotFound means the page has no usable chat input, typically a login wall.
var ErrInputNotFound = errors.New("chat input not found")

// ScriptDeliverer submits a prompt by evaluating scripts in the page and waits for
// the reply to stop changing.
type ScriptDeliverer struct {
	profile      Profile
	pollInterval time.Duration
	settle       int
	logger       *slog.Logger
}

// NewScriptDeliverer returns a deliverer for profile.
func NewScriptDeliverer(profile Profile, logger *slog.Logger) *ScriptDeliverer {
	return &ScriptDeliverer{
		profile:      profile,
		pollInterval: time.Second,
		settle:       2,
		logger:       logging.Component(logger, "site").With("site", profile.Name),
	}
}

// Profile returns the site profile.
func (d *ScriptDeliverer) Profile() Profile {
	return d.profile
}

// StartURL returns the page a new conversation starts from.
func (d *ScriptDeliverer) StartURL() string {
	return d.profile.StartURL
}

// ThreadURL recognises a server-side conversation URL.
func (d *ScriptDeliverer) ThreadURL(pageURL string) (string, bool) {
	return d.profile.ThreadURL(pageURL)
}

type pollResult struct {
	Busy  bool   `json:"busy"`
	Count int    `json:"count"`
	Text  string `json:"text"`
}

// Deliver sends text and returns the assistant's reply. The caller bounds it with ctx.
func (d *ScriptDeliverer) Deliver(ctx context.Context, h browser.Handle, text string) (string, error) {
	var before int
	if err := h.Evaluate(ctx, countScript(d.profile), &before); err != nil {
		return "", fmt.Errorf("count responses: %w", err)
	}

	var reason string
	if err := h.Evaluate(ctx, submitScript(d.profile, text), &reason); err != nil {
		return "", fmt.Errorf("submit prompt: %w", err)
	}
	if reason != "" {
		return "", fmt.Errorf("%w on %s: %s", ErrInputNotFound, d.profile.Name, reason)
	}
	d.logger.Debug("prompt submitted", "chars", len(text), "responses_before", before)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	var last string
	stable := 0
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		var r pollResult
		if err := h.Evaluate(ctx, pollScript(d.profile), &r); err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		if r.Busy || r.Count <= before || r.Text == "" {
			stable = 0
			continue
		}
		if r.Text == last {
			stable++
		} else {
			last = r.Text
			stable = 0
		}
		if stable >= d.settle {
			return last, nil
		}
	}
}
