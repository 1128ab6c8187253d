package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/neboloop/chatdriver/internal/logging"
)

var (
	// ErrNotFound is returned when a conversation file does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrMalformed is returned when a file is not a valid conversation document.
	ErrMalformed = errors.New("malformed conversation")
)

var requiredKeys = []string{"id", "title", "messages", "created_at", "updated_at"}

// Indexer receives every saved conversation. Failures never fail a save.
type Indexer interface {
	Upsert(c *Conversation, path string) error
}

// Store reads and writes conversations as one JSON document per file.
type Store struct {
	dir    string
	index  Indexer
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithIndex mirrors saves into idx.
func WithIndex(idx Indexer) Option {
	return func(s *Store) { s.index = idx }
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore returns a store rooted at dir.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Component(s.logger, "store")
	return s
}

// Dir returns the directory conversations are saved to by default.
func (s *Store) Dir() string {
	return s.dir
}

// PathFor returns the default location of a conversation.
func (s *Store) PathFor(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes c to path (PathFor(c.ID) when empty) atomically: a reader sees either
// the old file or the new one, never a partial write.
func (s *Store) Save(c *Conversation, path string) (string, error) {
	if c == nil {
		return "", errors.New("save: nil conversation")
	}
	if path == "" {
		path = s.PathFor(c.ID)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode conversation: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}

	if s.index != nil {
		if err := s.index.Upsert(c, path); err != nil {
			s.logger.Warn("failed to index conversation", "id", c.ID, "error", err)
		}
	}
	return path, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create conversation dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save conversation: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("save conversation: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// Load reads a conversation. The result equals what was saved, field for field.
func (s *Store) Load(path string) (*Conversation, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read conversation: %w", err)
	}
	c, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Decode parses a conversation document. It also accepts files written by older
// versions: a "url" key instead of "remote_url" and timestamps without a zone (UTC).
func Decode(data []byte) (*Conversation, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, key := range requiredKeys {
		if _, ok := raw[key]; !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrMalformed, key)
		}
	}

	var doc struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Messages []struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			Timestamp string `json:"timestamp"`
		} `json:"messages"`
		CreatedAt string  `json:"created_at"`
		UpdatedAt string  `json:"updated_at"`
		RemoteURL *string `json:"remote_url"`
		URL       *string `json:"url"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	c := &Conversation{
		ID:       doc.ID,
		Title:    doc.Title,
		Messages: make([]Message, 0, len(doc.Messages)),
	}
	var err error
	if c.CreatedAt, err = parseTime(doc.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: created_at: %v", ErrMalformed, err)
	}
	if c.UpdatedAt, err = parseTime(doc.UpdatedAt); err != nil {
		return nil, fmt.Errorf("%w: updated_at: %v", ErrMalformed, err)
	}
	for i, m := range doc.Messages {
		// Messages without a timestamp take the conversation's creation time.
		ts := c.CreatedAt
		if m.Timestamp != "" {
			if ts, err = parseTime(m.Timestamp); err != nil {
				return nil, fmt.Errorf("%w: messages[%d].timestamp: %v", ErrMalformed, i, err)
			}
		}
		c.Messages = append(c.Messages, Message{Role: m.Role, Content: m.Content, Timestamp: ts})
	}

	switch {
	case doc.RemoteURL != nil:
		c.RemoteURL = *doc.RemoteURL
	case doc.URL != nil:
		c.RemoteURL = *doc.URL
	}
	return c, nil
}

var legacyLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Normalize(t), nil
	}
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Normalize(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// Entry describes a saved conversation file.
type Entry struct {
	ID      string
	Path    string
	ModTime time.Time
}

// List returns the conversations in the store directory, most recently modified first.
func (s *Store) List() ([]Entry, error) {
	return ListDir(s.dir)
}

// ListDir returns the *.json files in dir, most recently modified first.
// A missing directory yields an empty list.
func ListDir(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			ID:      strings.TrimSuffix(name, ".json"),
			Path:    filepath.Join(dir, name),
			ModTime: info.ModTime(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].ModTime.After(entries[j].ModTime)
	})
	return entries, nil
}
