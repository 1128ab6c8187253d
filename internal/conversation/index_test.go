package conversation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexUpsertSearchRecent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx, err := OpenIndex(ctx, filepath.Join(dir, "conversations.db"))
	require.NoError(t, err)
	defer idx.Close()

	store := NewStore(dir, WithIndex(idx))

	older := New("Recipes", time.Now().Add(-time.Hour))
	older.Append(RoleUser, "how do I make 100% rye bread?", time.Now().Add(-time.Hour))
	_, err = store.Save(older, "")
	require.NoError(t, err)

	newer := sampleConversation()
	newer.Touch(time.Now())
	_, err = store.Save(newer, "")
	require.NoError(t, err)

	// Saving again updates in place.
	newer.Append(RoleUser, "and hotels?", time.Now())
	_, err = store.Save(newer, "")
	require.NoError(t, err)

	recent, err := idx.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, newer.ID, recent[0].ID)
	assert.Equal(t, 3, recent[0].MessageCount)
	assert.Equal(t, newer.RemoteURL, recent[0].RemoteURL)
	assert.Equal(t, store.PathFor(newer.ID), recent[0].Path)

	hits, err := idx.Search(ctx, "100%", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, older.ID, hits[0].ID)

	hits, err = idx.Search(ctx, "trip", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, newer.ID, hits[0].ID)

	require.NoError(t, idx.Remove(older.ID))
	recent, err = idx.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
