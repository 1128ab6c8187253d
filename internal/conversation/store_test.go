package conversation

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/chatdriver/internal/logging"
)

func sampleConversation() *Conversation {
	now := time.Date(2025, 3, 4, 10, 11, 12, 123456789, time.Local)
	c := New("Trip planning", now)
	c.Append(RoleUser, "hi", now.Add(time.Second))
	c.Append(RoleAssistant, "hello! how can I help?", now.Add(2*time.Second))
	c.Touch(now.Add(2 * time.Second))
	c.RemoteURL = "https://chatgpt.com/c/abc123"
	return c
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), WithLogger(logging.Discard()))
	c := sampleConversation()

	path, err := store.Save(c, "")
	require.NoError(t, err)
	assert.Equal(t, store.PathFor(c.ID), path)

	got, err := store.Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestSaveEmptyConversation(t *testing.T) {
	store := NewStore(t.TempDir())
	c := New("", time.Now())
	assert.Equal(t, "Conversation "+c.ID, c.Title)

	path, err := store.Save(c, "")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"messages": []`)
	assert.NotContains(t, string(data), "remote_url")

	got, err := store.Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	c := sampleConversation()

	_, err := store.Save(c, "")
	require.NoError(t, err)
	c.Append(RoleUser, "second", time.Now())
	_, err = store.Save(c, "")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")

	got, err := store.Load(store.PathFor(c.ID))
	require.NoError(t, err)
	assert.Len(t, got.Messages, 3)
}

func TestLoadNotFound(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	tests := map[string]string{
		"not json":      "{{{",
		"array":         "[1,2]",
		"missing title": `{"id":"x","messages":[],"created_at":"2025-01-01T00:00:00Z","updated_at":"2025-01-01T00:00:00Z"}`,
		"missing msgs":  `{"id":"x","title":"t","created_at":"2025-01-01T00:00:00Z","updated_at":"2025-01-01T00:00:00Z"}`,
		"bad timestamp": `{"id":"x","title":"t","messages":[],"created_at":"yesterday","updated_at":"2025-01-01T00:00:00Z"}`,
		"wrong type":    `{"id":"x","title":"t","messages":"nope","created_at":"2025-01-01T00:00:00Z","updated_at":"2025-01-01T00:00:00Z"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))
			_, err := store.Load(path)
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func TestLoadLegacyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.json")
	legacy := `{
		"id": "conv_20240101_120000",
		"title": "Old",
		"messages": [{"role": "user", "content": "hi", "timestamp": "2024-01-01T12:00:01.500000"}],
		"created_at": "2024-01-01T12:00:00.000001",
		"updated_at": "2024-01-01T12:00:02",
		"url": "https://www.perplexity.ai/search/xyz"
	}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	got, err := NewStore(filepath.Dir(path)).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://www.perplexity.ai/search/xyz", got.RemoteURL)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 1000, time.UTC), got.CreatedAt)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 1, 500000000, time.UTC), got.Messages[0].Timestamp)
}

func TestLoadMessageWithoutTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "untimed.json")
	doc := `{
		"id": "conv_20240101_120000",
		"title": "Untimed",
		"messages": [
			{"role": "user", "content": "hi", "timestamp": ""},
			{"role": "assistant", "content": "hello"}
		],
		"created_at": "2024-01-01T12:00:00Z",
		"updated_at": "2024-01-01T12:05:00Z"
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	got, err := NewStore(filepath.Dir(path)).Load(path)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, created, got.Messages[0].Timestamp)
	assert.Equal(t, created, got.Messages[1].Timestamp)
}

func TestLoadRejectsUnparseableMessageTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	doc := `{"id":"x","title":"t","messages":[{"role":"user","content":"hi","timestamp":"noon"}],` +
		`"created_at":"2024-01-01T12:00:00Z","updated_at":"2024-01-01T12:00:00Z"}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	_, err := NewStore(filepath.Dir(path)).Load(path)
	assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
}

func TestListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		c := New("", base)
		path, err := store.Save(c, "")
		require.NoError(t, err)
		mt := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, mt, mt))
		ids = append(ids, c.ID)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ids[2], entries[0].ID)
	assert.Equal(t, ids[1], entries[1].ID)
	assert.Equal(t, ids[0], entries[2].ID)
}

func TestListMissingDir(t *testing.T) {
	entries, err := ListDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type failingIndex struct{ calls int }

func (f *failingIndex) Upsert(*Conversation, string) error {
	f.calls++
	return errors.New("disk full")
}

func TestIndexFailureDoesNotFailSave(t *testing.T) {
	idx := &failingIndex{}
	store := NewStore(t.TempDir(), WithIndex(idx), WithLogger(logging.Discard()))
	_, err := store.Save(sampleConversation(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, idx.calls)
}

func TestNewIDFormat(t *testing.T) {
	id := NewID(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	assert.Regexp(t, `^conv_20250102_030405_[0-9a-f]{8}$`, id)
	assert.NotEqual(t, id, NewID(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestCloneIsDeep(t *testing.T) {
	c := sampleConversation()
	cp := c.Clone()
	cp.Messages[0].Content = "changed"
	cp.Append(RoleUser, "more", time.Now())
	assert.Equal(t, "hi", c.Messages[0].Content)
	assert.Len(t, c.Messages, 2)
}
