package blacklist

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client), mr
}

func TestAddAndContains(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "jti-1", time.Minute))

	found, err := store.Contains(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = store.Contains(ctx, "jti-unknown")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEntriesExpireWithTokenLifetime(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "jti-2", time.Second))

	mr.FastForward(2 * time.Second)

	found, err := store.Contains(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, found, "entry must be pruned once the token would have expired")
}

func TestAddSkipsExpiredTokens(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "jti-3", -time.Minute))

	found, err := store.Contains(ctx, "jti-3")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEmptyJTI(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, store.Add(ctx, "", time.Minute))

	found, err := store.Contains(ctx, "")
	require.NoError(t, err)
	assert.False(t, found)
}
