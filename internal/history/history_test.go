package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndRecentNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, text := range []string{"first", "second", "third"} {
		require.NoError(t, store.Record(ctx, Session{
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
			RequestID:    "req-" + text,
			Transcript:   text,
			Engine:       "remote",
			AudioSeconds: 2.5,
			ElapsedMS:    420,
			Source:       "live",
		}))
	}

	sessions, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "third", sessions[0].Transcript)
	require.Equal(t, "second", sessions[1].Transcript)
	require.Equal(t, "req-third", sessions[0].RequestID)
	require.Equal(t, "remote", sessions[0].Engine)
}

func TestRecentDefaultsLimitAndEmptyStore(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	sessions, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, sessions)

	require.NoError(t, store.Record(ctx, Session{Transcript: "only", Engine: "local", Fallback: true}))
	sessions, err = store.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.True(t, sessions[0].Fallback)
}

func TestOpenCreatesParentDirectoryAndPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deep", "nested", "history.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Record(context.Background(), Session{Transcript: "persisted", Engine: "local"}))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	sessions, err := reopened.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "persisted", sessions[0].Transcript)
}

func TestDefaultPathHonorsXDGState(t *testing.T) {
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)

	path, err := DefaultPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(state, "ditado", "history.db"), path)

	t.Setenv("XDG_STATE_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	path, err = DefaultPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "state", "ditado", "history.db"), path)
}
