// Package sites drives the chat UIs of specific web chat services through a page handle.
package sites

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/neboloop/chatdriver/internal/config"
)

// Profile describes one chat site. Selector lists are tried in order.
type Profile struct {
	Name              string
	StartURL          string
	InputSelectors    []string
	SendSelectors     []string
	ResponseSelectors []string
	BusySelectors     []string

	// ThreadPath is the URL path prefix of a server-side conversation, e.g. "/c/".
	ThreadPath string
}

var builtin = map[string]Profile{
	"chatgpt": {
		Name:     "chatgpt",
		StartURL: "https://chatgpt.com/",
		InputSelectors: []string{
			`#prompt-textarea[contenteditable="true"]`,
			`div[id="prompt-textarea"]`,
			`textarea[name="prompt-textarea"]`,
			`[data-testid="chat-input"]`,
			`.ProseMirror`,
			`div[contenteditable="true"]`,
		},
		SendSelectors: []string{
			`#composer-submit-button`,
			`[data-testid="send-button"]`,
			`button[aria-label*="Send"]`,
			`button[type="submit"]`,
		},
		ResponseSelectors: []string{
			`[data-message-author-role="assistant"]`,
			`[data-testid^="conversation-turn"] .markdown`,
			`.markdown`,
		},
		BusySelectors: []string{
			`[data-testid="stop-button"]`,
			`[aria-label="Stop generating"]`,
			`[aria-label="Stop streaming"]`,
		},
		ThreadPath: "/c/",
	},
	"perplexity": {
		Name:     "perplexity",
		StartURL: "https://www.perplexity.ai/",
		InputSelectors: []string{
			`textarea[placeholder*="Ask"]`,
			`textarea[aria-label*="Ask"]`,
			`[data-testid="ask-input"]`,
			`#ask-input`,
			`div[contenteditable="true"]`,
			`textarea`,
		},
		SendSelectors: []string{
			`button[aria-label*="Submit"]`,
			`button[aria-label*="Send"]`,
			`button[type="submit"]`,
		},
		ResponseSelectors: []string{
			`[data-testid="answer"]`,
			`.answer-content`,
			`[id^="markdown-content"]`,
			`.prose`,
		},
		BusySelectors: []string{
			`button[aria-label*="Stop"]`,
		},
		ThreadPath: "/search/",
	},
}

// Names returns the built-in profile names.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a built-in profile with any override applied.
func Lookup(name string, override *config.SiteOverride) (Profile, error) {
	p, ok := builtin[strings.ToLower(name)]
	if !ok {
		return Profile{}, fmt.Errorf("unknown site %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	p = p.clone()
	if override == nil {
		return p, nil
	}

	if override.StartURL != "" {
		p.StartURL = override.StartURL
	}
	if override.InputSelector != "" {
		p.InputSelectors = []string{override.InputSelector}
	}
	if override.SendSelector != "" {
		p.SendSelectors = []string{override.SendSelector}
	}
	if override.ResponseSelector != "" {
		p.ResponseSelectors = []string{override.ResponseSelector}
	}
	if override.BusySelector != "" {
		p.BusySelectors = []string{override.BusySelector}
	}
	if override.ThreadPath != "" {
		p.ThreadPath = override.ThreadPath
	}
	return p, nil
}

// FromConfig picks the configured site profile.
func FromConfig(cfg *config.Config) (Profile, error) {
	var override *config.SiteOverride
	if o, ok := cfg.Sites[cfg.Site]; ok {
		override = &o
	}
	return Lookup(cfg.Site, override)
}

func (p Profile) clone() Profile {
	p.InputSelectors = append([]string(nil), p.InputSelectors...)
	p.SendSelectors = append([]string(nil), p.SendSelectors...)
	p.ResponseSelectors = append([]string(nil), p.ResponseSelectors...)
	p.BusySelectors = append([]string(nil), p.BusySelectors...)
	return p
}

// ThreadURL reports whether pageURL is a conversation thread on this site and returns it
// without query or fragment.
func (p Profile) ThreadURL(pageURL string) (string, bool) {
	if p.ThreadPath == "" {
		return "", false
	}
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	start, err := url.Parse(p.StartURL)
	if err == nil && start.Host != "" && !strings.EqualFold(start.Host, u.Host) {
		return "", false
	}
	if !strings.HasPrefix(u.Path, p.ThreadPath) || len(u.Path) <= len(p.ThreadPath) {
		return "", false
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), true
}
