package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLease(t *testing.T) (*Lease, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLease(client, time.Second), mr
}

func TestLeaseAcquireRelease(t *testing.T) {
	lease, _ := newTestLease(t)
	ctx := context.Background()
	key := PeriodLeaseKey()

	require.NoError(t, lease.Acquire(ctx, key, "actor-1"))
	assert.ErrorIs(t, lease.Acquire(ctx, key, "actor-2"), ErrLeaseHeld)

	require.NoError(t, lease.Release(ctx, key, "actor-1"))
	require.NoError(t, lease.Acquire(ctx, key, "actor-2"))
}

func TestLeaseReleaseByOtherHolderIsNoop(t *testing.T) {
	lease, _ := newTestLease(t)
	ctx := context.Background()
	key := PeriodLeaseKey()

	require.NoError(t, lease.Acquire(ctx, key, "actor-1"))
	require.NoError(t, lease.Release(ctx, key, "actor-2"))

	// Still held by actor-1.
	assert.ErrorIs(t, lease.Acquire(ctx, key, "actor-3"), ErrLeaseHeld)
}

func TestLeaseExpires(t *testing.T) {
	lease, mr := newTestLease(t)
	ctx := context.Background()
	key := PeriodLeaseKey()

	require.NoError(t, lease.Acquire(ctx, key, "actor-1"))
	mr.FastForward(2 * time.Second)
	require.NoError(t, lease.Acquire(ctx, key, "actor-2"))
}

func TestNilLeaseIsNoop(t *testing.T) {
	var lease *Lease
	ctx := context.Background()
	assert.NoError(t, lease.Acquire(ctx, "k", "h"))
	assert.NoError(t, lease.Release(ctx, "k", "h"))
}
