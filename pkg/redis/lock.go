package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired is returned when another holder owns the lock
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when the lease expired or was taken over
	ErrLockNotHeld = errors.New("lock not held")
)

// Compare-and-mutate scripts: both verify the stored token before acting so
// a replica that lost its lease cannot release or extend another holder's.
var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// Lease is a held distributed lock. The token ties the lease to the replica
// that acquired it.
type Lease struct {
	client *Client
	key    string
	token  string
}

// Locker hands out single-holder leases, used to elect the one replica that
// runs backlog sweeps.
type Locker struct {
	client    *Client
	keyPrefix string
}

// NewLocker creates a new Locker
func NewLocker(client *Client, keyPrefix string) *Locker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	return &Locker{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Acquire takes the lease if nobody holds it. There is no waiting: a replica
// that loses the race skips its turn rather than queueing behind the leader.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	leaseKey := l.keyPrefix + key
	token := uuid.New().String()

	ok, err := l.client.rdb.SetNX(ctx, leaseKey, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lease: %s", key)

	return &Lease{
		client: l.client,
		key:    leaseKey,
		token:  token,
	}, nil
}

// Release gives the lease up. Returns ErrLockNotHeld when the lease already
// expired or was taken over, which the caller treats as informational.
func (lease *Lease) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lease.client.rdb, []string{lease.key}, lease.token).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	lease.client.logger.WithContext(ctx).Debugf("Released lease: %s", lease.key)
	return nil
}

// Extend pushes the lease expiry out by ttl. Long sweeps call this between
// tenants so the lease does not lapse mid-pass.
func (lease *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, lease.client.rdb, []string{lease.key}, lease.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}
