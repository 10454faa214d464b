package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockHeld is returned when another holder owns the lock.
	ErrLockHeld = errors.New("lock held by another worker")
	// ErrLockLost is returned by Extend once the lock expired or changed hands.
	ErrLockLost = errors.New("lock no longer held")
)

// CatalogSyncLockKey builds redis keys for the per-vendor catalog sync section.
func CatalogSyncLockKey(vendor string) string {
	return fmt.Sprintf("possync:catalog:%s:lock", strings.ToLower(strings.TrimSpace(vendor)))
}

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the expiry only while the key still carries our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker hands out expiring redis locks.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker returns a Locker whose locks expire after ttl.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

// Lock is a held lock.
type Lock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// Acquire takes key or fails with ErrLockHeld.
func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("locker not initialised")
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{client: l.client, key: key, token: token, ttl: l.ttl}, nil
}

// Release drops the lock if it has not expired and been taken over.
func (k *Lock) Release(ctx context.Context) error {
	if k == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, k.client, []string{k.key}, k.token).Err(); err != nil {
		return fmt.Errorf("shared: release %s: %w", k.key, err)
	}
	return nil
}

// Extend pushes the expiry a full ttl forward. It fails with ErrLockLost when
// the key expired or another holder took it.
func (k *Lock) Extend(ctx context.Context) error {
	if k == nil {
		return nil
	}
	n, err := extendScript.Run(ctx, k.client, []string{k.key}, k.token, k.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("shared: extend %s: %w", k.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrLockLost, k.key)
	}
	return nil
}
