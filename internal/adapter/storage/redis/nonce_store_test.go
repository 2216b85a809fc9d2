package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNonceStore(t *testing.T) (*NonceStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewNonceStore(client), s
}

func TestNonceStore_CheckAndSet_FirstSeen(t *testing.T) {
	store, s := newTestNonceStore(t)

	ok, err := store.CheckAndSet(context.Background(), "processor", "evt_1", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, s.Exists("wallet:seen:processor:evt_1"))
}

func TestNonceStore_CheckAndSet_Replay(t *testing.T) {
	store, _ := newTestNonceStore(t)
	ctx := context.Background()

	ok, err := store.CheckAndSet(ctx, "processor", "evt_2", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.CheckAndSet(ctx, "processor", "evt_2", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNonceStore_CheckAndSet_ScopesAreIsolated(t *testing.T) {
	store, _ := newTestNonceStore(t)
	ctx := context.Background()

	ok, err := store.CheckAndSet(ctx, "processor", "id-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.CheckAndSet(ctx, "rate-feed", "id-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNonceStore_CheckAndSet_Expired(t *testing.T) {
	store, s := newTestNonceStore(t)
	ctx := context.Background()

	ok, err := store.CheckAndSet(ctx, "processor", "evt_3", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	s.FastForward(2 * time.Second)

	ok, err = store.CheckAndSet(ctx, "processor", "evt_3", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNonceStore_Forget(t *testing.T) {
	store, s := newTestNonceStore(t)
	ctx := context.Background()

	ok, err := store.CheckAndSet(ctx, "processor", "evt_4", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Forget(ctx, "processor", "evt_4"))
	assert.False(t, s.Exists("wallet:seen:processor:evt_4"))

	ok, err = store.CheckAndSet(ctx, "processor", "evt_4", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}
