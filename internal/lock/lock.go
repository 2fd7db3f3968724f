// Package lock provides per-key mutual exclusion. The engine locks on a
// kiosk key before touching that kiosk's folder mapping or folders.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Locker acquires a named lock, blocking until it is free or ctx is done.
// The returned function releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// KioskKey is the lock name for a kiosk's folder state.
func KioskKey(kioskID uint) string {
	return fmt.Sprintf("kiosk:%d", kioskID)
}

// LocalLocker serializes holders within one process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
	}
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the key's expiry only if it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker holds locks as SET NX PX keys so that several processes
// share the same exclusion. A held lock has its expiry pushed back every
// ttl/3 until it is released, so ttl bounds how long a crashed holder
// blocks the key rather than how long a sync may run.
type RedisLocker struct {
	client        redis.UniversalClient
	logger        *zap.Logger
	prefix        string
	ttl           time.Duration
	renewInterval time.Duration
	pollInterval  time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client:        client,
		logger:        logger,
		prefix:        "kiosksync:lock:",
		ttl:           ttl,
		renewInterval: ttl / 3,
		pollInterval:  100 * time.Millisecond,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	name := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, name, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			stop := make(chan struct{})
			done := make(chan struct{})
			go l.renew(name, token, stop, done)

			var once sync.Once
			return func() {
				once.Do(func() {
					close(stop)
					<-done
					l.release(name, token)
				})
			}, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		}
	}
}

func (l *RedisLocker) release(name, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{name}, token).Err(); err != nil {
		l.logger.Warn("Failed to release lock", zap.String("lock", name), zap.Error(err))
	}
}

// renew keeps the lease alive until stop is closed or the key is lost.
func (l *RedisLocker) renew(name, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if l.renewInterval <= 0 {
		return
	}
	ticker := time.NewTicker(l.renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.renewInterval)
		n, err := renewScript.Run(ctx, l.client, []string{name}, token, l.ttl.Milliseconds()).Int64()
		cancel()
		if err != nil {
			l.logger.Warn("Failed to renew lock", zap.String("lock", name), zap.Error(err))
			continue
		}
		if n == 0 {
			l.logger.Warn("Lock lost before release", zap.String("lock", name))
			return
		}
	}
}
