package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/chatdriver/internal/conversation"
	"github.com/neboloop/chatdriver/internal/defaults"
	"github.com/neboloop/chatdriver/internal/logging"
)

func saveConversation(t *testing.T, store *conversation.Store, title string, msgs ...string) *conversation.Conversation {
	t.Helper()
	now := time.Now()
	c := conversation.New(title, now)
	for i, m := range msgs {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		c.Append(role, m, now)
	}
	_, err := store.Save(c, "")
	require.NoError(t, err)
	return c
}

func TestResolveConversation(t *testing.T) {
	store := conversation.NewStore("/data/conversations")

	assert.Equal(t, filepath.Join("/data/conversations", "conv_1.json"), resolveConversation(store, "conv_1"))
	assert.Equal(t, "saved.json", resolveConversation(store, "saved.json"))
	assert.Equal(t, filepath.Join("x", "y"), resolveConversation(store, filepath.Join("x", "y")))
}

func TestExportCommandWritesMarkdown(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(defaults.DataDirEnv, dir)

	store := conversation.NewStore(filepath.Join(dir, "conversations"), conversation.WithLogger(logging.Discard()))
	c := saveConversation(t, store, "Trip plans", "where to?", "Lisbon")

	out := filepath.Join(t.TempDir(), "trip.md")
	root := SetupRootCmd()
	root.SetArgs([]string{"export", c.ID, "--format", "md", "--output", out})
	require.NoError(t, root.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Trip plans")
	assert.Contains(t, string(data), "**ASSISTANT:** Lisbon")
}

func TestExportCommandUnknownFormat(t *testing.T) {
	t.Setenv(defaults.DataDirEnv, t.TempDir())

	root := SetupRootCmd()
	root.SetArgs([]string{"export", "conv_x", "--format", "pdf"})
	root.SetOut(new(nopWriter))
	root.SetErr(new(nopWriter))
	assert.Error(t, root.Execute())
}

func TestListFilesSearch(t *testing.T) {
	store := conversation.NewStore(t.TempDir(), conversation.WithLogger(logging.Discard()))
	saveConversation(t, store, "Recipes", "how long to boil an egg")
	hit := saveConversation(t, store, "Trip", "find a NEEDLE in a haystack")

	listLimit, listSearch = 20, "needle"
	t.Cleanup(func() { listLimit, listSearch = 20, "" })

	rows, err := listFiles(store)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, hit.ID, rows[0].ID)
	assert.Equal(t, 1, rows[0].MessageCount)
}

func TestShowLastPrintsLatestReply(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(defaults.DataDirEnv, dir)

	store := conversation.NewStore(filepath.Join(dir, "conversations"), conversation.WithLogger(logging.Discard()))
	c := saveConversation(t, store, "Trip plans", "where to?", "Lisbon", "and after?", "Porto")
	t.Cleanup(func() { showLast, showRaw = false, false })

	var out bytes.Buffer
	root := SetupRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"show", c.ID, "--last", "--raw"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "Porto\n", out.String())
}

func TestShowLastWithoutReply(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(defaults.DataDirEnv, dir)

	store := conversation.NewStore(filepath.Join(dir, "conversations"), conversation.WithLogger(logging.Discard()))
	c := saveConversation(t, store, "Pending", "anyone there?")
	t.Cleanup(func() { showLast, showRaw = false, false })

	root := SetupRootCmd()
	root.SetOut(new(nopWriter))
	root.SetErr(new(nopWriter))
	root.SetArgs([]string{"show", c.ID, "--last", "--raw"})
	assert.ErrorContains(t, root.Execute(), "no assistant reply")
}

func TestConfigResetRestoresDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(defaults.DataDirEnv, dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("site: broken\n"), 0644))
	kept := filepath.Join(dir, defaults.DescriptorFile)
	require.NoError(t, os.WriteFile(kept, []byte(`{"endpoint":"http://127.0.0.1:9222"}`), 0644))

	var out bytes.Buffer
	root := SetupRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "reset"})
	require.NoError(t, root.Execute())

	want, err := defaults.GetDefault("config.yaml")
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
	assert.Contains(t, out.String(), "config.yaml")
	assert.FileExists(t, kept)
}

func TestConfigDefaultsPrintsConfig(t *testing.T) {
	var out bytes.Buffer
	root := SetupRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "defaults"})
	require.NoError(t, root.Execute())

	want, err := defaults.GetDefault("config.yaml")
	require.NoError(t, err)
	assert.Equal(t, string(want), out.String())
}

func TestListIndexedDropsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	idx, err := conversation.OpenIndex(context.Background(), filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	store := conversation.NewStore(dir, conversation.WithLogger(logging.Discard()), conversation.WithIndex(idx))
	kept := saveConversation(t, store, "Kept", "still here")
	gone := saveConversation(t, store, "Gone", "deleted by hand")
	require.NoError(t, os.Remove(store.PathFor(gone.ID)))

	listLimit, listSearch = 20, ""
	t.Cleanup(func() { listLimit = 20 })

	var logs bytes.Buffer
	rows, err := listIndexed(context.Background(), idx, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, kept.ID, rows[0].ID)
	assert.Empty(t, logs.String())

	rows, err = idx.Recent(context.Background(), 20)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "missing conversation should be removed from the index")
}

func TestRenderMarkdown(t *testing.T) {
	out, err := renderMarkdown("# Title\n\n**USER:** hello\n")
	require.NoError(t, err)
	assert.Contains(t, out, "hello")
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
