package evidence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/presenced/internal/core/ports"
)

// fakeClock lets tests step time across TTL boundaries.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore() (*MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	return NewMemoryStore(clock), clock
}

func TestPutGetDel(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", []byte("v"), time.Minute))

	val, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, store.Del(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestGetMissing(t *testing.T) {
	store, _ := newTestStore()
	_, err := store.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestTTLExpiry(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", []byte("v"), 10*time.Second))

	clock.advance(9 * time.Second)
	_, err := store.Get(ctx, "k")
	assert.NoError(t, err)

	clock.advance(2 * time.Second)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestPutIfAbsent(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	won, err := store.PutIfAbsent(ctx, "commit", []byte("first"), time.Minute)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = store.PutIfAbsent(ctx, "commit", []byte("second"), time.Minute)
	require.NoError(t, err)
	assert.False(t, won)

	val, err := store.Get(ctx, "commit")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), val)

	// Once the winner expires the key is free again.
	clock.advance(2 * time.Minute)
	won, err = store.PutIfAbsent(ctx, "commit", []byte("third"), time.Minute)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestAppendSetMember(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.AppendSetMember(ctx, "set", "a", time.Minute))
	require.NoError(t, store.AppendSetMember(ctx, "set", "b", time.Minute))
	require.NoError(t, store.AppendSetMember(ctx, "set", "a", time.Minute))

	members, err := store.SetMembers(ctx, "set")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, members)

	clock.advance(2 * time.Minute)
	members, err = store.SetMembers(ctx, "set")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestContextCancellation(t *testing.T) {
	store, _ := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.Put(ctx, "k", []byte("v"), time.Minute))
	_, err := store.Get(ctx, "k")
	assert.Error(t, err)
}

func TestValueIsolation(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	buf := []byte("mutable")
	require.NoError(t, store.Put(ctx, "k", buf, time.Minute))
	buf[0] = 'X'

	val, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("mutable"), val)
}
