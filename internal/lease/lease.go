// Package lease guarantees that only one sync round runs per synchronizing
// identity at a time.
package lease

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker hands out exclusive leases keyed by identity. Acquire fails fast
// with common.ErrRoundInProgress when the lease is held.
type Locker interface {
	Acquire(ctx context.Context, identity string) (release func(), err error)
}

// Local serializes rounds inside one process.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: map[string]struct{}{}}
}

func (l *Local) Acquire(_ context.Context, identity string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[identity]; busy {
		return nil, fmt.Errorf("%s: %w", identity, common.ErrRoundInProgress)
	}
	l.held[identity] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, identity)
			l.mu.Unlock()
		})
	}, nil
}

const (
	DefaultRedisTTL    = 2 * time.Minute
	DefaultRedisPrefix = "caresync:round:"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lease taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis serializes rounds across processes sharing a Redis server. The TTL
// bounds how long a crashed holder blocks others.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &Redis{client: client, ttl: ttl, prefix: DefaultRedisPrefix}
}

func (r *Redis) Acquire(ctx context.Context, identity string) (func(), error) {
	key := r.prefix + identity
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire round lease %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", identity, common.ErrRoundInProgress)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, r.client, []string{key}, token).Err()
		})
	}, nil
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
