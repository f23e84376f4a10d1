// Package lock serialises admin processing of the same money request
// across API replicas.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

// ErrLocked is returned when another holder owns the key.
var ErrLocked = errors.New("resource is locked")

// Locker hands out short-lived exclusive locks.  The returned release
// function is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// releaseScript deletes the key only when it still holds our token, so an
// expired lock taken over by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: "lock:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := utils.RandomHex(16)
	if err != nil {
		return nil, err
	}
	full := l.prefix + key
	ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.rdb, []string{full}, token).Err()
		})
	}, nil
}

// LocalLocker is the single-process fallback used when Redis is absent.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func NewLocalLocker() *LocalLocker { return &LocalLocker{held: map[string]time.Time{}} }

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, ErrLocked
	}
	expires := now.Add(ttl)
	l.held[key] = expires
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key] == expires {
				delete(l.held, key)
			}
		})
	}, nil
}

// New returns a Redis locker when rdb is set and a local one otherwise.
func New(rdb *redis.Client) Locker {
	if rdb == nil {
		return NewLocalLocker()
	}
	return NewRedisLocker(rdb)
}
