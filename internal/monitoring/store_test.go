package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "stats", "clawlayer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_InsertAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Truncate(time.Millisecond)
	require.NoError(t, store.Insert(ctx, RequestLog{
		ID: "r1", Timestamp: base, Router: "greeting",
		Message: "hello", Response: "Hi (quick response)", LatencyMS: 12,
		Tried: []string{"echo: no match", "greeting: matched at stage 1/1"},
		Trace: `[{"stage":1}]`,
	}))
	require.NoError(t, store.Insert(ctx, RequestLog{
		ID: "r2", Timestamp: base.Add(time.Second), Router: "fallback",
		Message: "explain DNS", LatencyMS: 900, Proxied: true,
	}))

	logs, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, "r2", logs[0].ID, "newest first")
	assert.True(t, logs[0].Proxied)

	got := logs[1]
	assert.Equal(t, "greeting", got.Router)
	assert.Equal(t, base.UnixMilli(), got.Timestamp.UnixMilli())
	assert.Equal(t, []string{"echo: no match", "greeting: matched at stage 1/1"}, got.Tried)
	assert.Equal(t, `[{"stage":1}]`, got.Trace)
}

func TestStore_RecentLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Insert(ctx, RequestLog{
			ID:        string(rune('a' + i)),
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
			Router:    "quick",
		}))
	}

	logs, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestStore_RouterCounts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for i, router := range []string{"echo", "echo", "fallback"} {
		require.NoError(t, store.Insert(ctx, RequestLog{
			ID: string(rune('0' + i)), Timestamp: time.Now(), Router: router,
		}))
	}

	counts, err := store.RouterCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["echo"])
	assert.Equal(t, int64(1), counts["fallback"])
}

func TestStore_Prune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Insert(ctx, RequestLog{ID: "old", Timestamp: now.Add(-48 * time.Hour), Router: "echo"}))
	require.NoError(t, store.Insert(ctx, RequestLog{ID: "new", Timestamp: now, Router: "echo"}))

	pruned, err := store.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	logs, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "new", logs[0].ID)
}
