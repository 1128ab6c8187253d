// Package conversation holds the chat transcript model and its durable storage.
package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Roles a Message can have.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation. It is never modified once appended.
type Message struct {
	Role      string    `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Conversation is a transcript plus the remote thread it lives in.
type Conversation struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Messages  []Message `json:"messages" yaml:"messages"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
	RemoteURL string    `json:"remote_url,omitempty" yaml:"remote_url,omitempty"`
}

// Now returns the current time in the form stored on disk: UTC, microsecond precision.
func Now() time.Time {
	return Normalize(time.Now())
}

// Normalize converts t to the stored representation.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// NewID returns a conversation id such as conv_20250101_120000_1a2b3c4d.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("conv_%s_%s", now.UTC().Format("20060102_150405"), suffix)
}

// New creates an empty conversation. An empty title becomes "Conversation <id>".
func New(title string, now time.Time) *Conversation {
	now = Normalize(now)
	id := NewID(now)
	if strings.TrimSpace(title) == "" {
		title = "Conversation " + id
	}
	return &Conversation{
		ID:        id,
		Title:     title,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message stamped at now.
func (c *Conversation) Append(role, content string, now time.Time) Message {
	m := Message{Role: role, Content: content, Timestamp: Normalize(now)}
	c.Messages = append(c.Messages, m)
	return m
}

// Touch sets UpdatedAt.
func (c *Conversation) Touch(now time.Time) {
	c.UpdatedAt = Normalize(now)
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Messages = append([]Message(nil), c.Messages...)
	if cp.Messages == nil {
		cp.Messages = []Message{}
	}
	return &cp
}

// LastAssistant returns the most recent assistant reply, if any.
func (c *Conversation) LastAssistant() (Message, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return c.Messages[i], true
		}
	}
	return Message{}, false
}
