package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld indicates another holder owns the lease.
var ErrLeaseHeld = errors.New("lease already held")

// PeriodLeaseKey builds redis keys for period administration critical sections.
// Period lock/close/reopen changes what is legal for every in-flight posting,
// so it is serialized globally through this lease.
func PeriodLeaseKey() string {
	return "fiscal:periods:admin:lease"
}

// Lease is a coarse redis-backed mutual exclusion lease.
type Lease struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLease constructs a Lease with the given holder TTL.
func NewLease(client *redis.Client, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Lease{client: client, ttl: ttl}
}

// Acquire takes the lease or fails fast with ErrLeaseHeld.
func (l *Lease) Acquire(ctx context.Context, key, holder string) error {
	if l == nil || l.client == nil {
		return nil
	}
	ok, err := l.client.SetNX(ctx, key, holder, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("lease acquire: %w", err)
	}
	if !ok {
		return ErrLeaseHeld
	}
	return nil
}

// Release frees the lease when still held by the same holder.
func (l *Lease) Release(ctx context.Context, key, holder string) error {
	if l == nil || l.client == nil {
		return nil
	}
	const script = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`
	return l.client.Eval(ctx, script, []string{key}, holder).Err()
}
