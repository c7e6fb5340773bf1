package archive

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteSeenAfterRecord(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer store.Close()

	seen, err := store.Seen(ctx, "tumblr", "post-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Record(ctx, "tumblr", "post-1"))

	seen, err = store.Seen(ctx, "tumblr", "post-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestSQLiteIdentityScopedByCategory(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Record(ctx, "tumblr", "42"))

	seen, err := store.Seen(ctx, "twitter", "42")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestSQLiteRecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Record(ctx, "tumblr", "post-1"))
	require.NoError(t, store.Record(ctx, "tumblr", "post-1"))

	seen, err := store.Seen(ctx, "tumblr", "post-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "archive.db")

	store, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, "tumblr", "post-1"))
	require.NoError(t, store.Close())

	reopened, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	seen, err := reopened.Seen(ctx, "tumblr", "post-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestSQLiteCreatesParentDirectory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dir", "archive.db")

	store, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Record(ctx, "tumblr", "post-1"))
}

func TestOpenSelectsSQLiteForPlainPath(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*SQLiteStore)
	assert.True(t, ok)
}
