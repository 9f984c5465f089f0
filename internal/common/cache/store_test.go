package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_SetGet(t *testing.T) {
	store := NewLocalStore(time.Minute, time.Minute)
	ctx := context.Background()

	_, found := store.Get(ctx, "missing")
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	val, found := store.Get(ctx, "k")
	require.True(t, found)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, store.Delete(ctx, "k"))
	_, found = store.Get(ctx, "k")
	assert.False(t, found)
}

func TestLocalStore_AddClaimsOnce(t *testing.T) {
	store := NewLocalStore(time.Minute, time.Minute)
	ctx := context.Background()

	claimed, err := store.Add(ctx, "k", []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.Add(ctx, "k", []byte("2"), time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)

	val, found := store.Get(ctx, "k")
	require.True(t, found)
	assert.Equal(t, []byte("1"), val)
}

func TestLocalStore_Expiry(t *testing.T) {
	store := NewLocalStore(time.Minute, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, found := store.Get(ctx, "k")
	assert.False(t, found)
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "test:"), mr
}

func TestRedisStore_SetGet(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	_, found := store.Get(ctx, "missing")
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	val, found := store.Get(ctx, "k")
	require.True(t, found)
	assert.Equal(t, []byte("v"), val)
}

func TestRedisStore_AddClaimsOnce(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	claimed, err := store.Add(ctx, "k", []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.Add(ctx, "k", []byte("2"), time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)

	_, found := store.Get(ctx, "k")
	assert.False(t, found)
}
