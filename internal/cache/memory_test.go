package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGetDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "otp:admin", []byte("123456"), time.Minute))

	value, found, err := store.Get(ctx, "otp:admin")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("123456"), value)

	require.NoError(t, store.Delete(ctx, "otp:admin"))

	_, found, err = store.Get(ctx, "otp:admin")
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryStoreExpiry(t *testing.T) {
	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore(WithMemoryClock(func() time.Time { return current }))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "otp:admin", []byte("123456"), 5*time.Minute))

	current = current.Add(6 * time.Minute)

	_, found, err := store.Get(ctx, "otp:admin")
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryStoreIncrementWithTTL(t *testing.T) {
	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore(WithMemoryClock(func() time.Time { return current }))
	ctx := context.Background()

	count, _, err := store.IncrementWithTTL(ctx, "rate:ip", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	count, _, err = store.IncrementWithTTL(ctx, "rate:ip", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	// Window elapses; counter resets.
	current = current.Add(2 * time.Minute)
	count, _, err = store.IncrementWithTTL(ctx, "rate:ip", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestMemoryStoreClose(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "key", []byte("value"), time.Minute))

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	// The store stays usable after Close; only the janitor stops.
	value, found, err := store.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("value"), value)
}
