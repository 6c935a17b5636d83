package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still carries our token, so an
// expired lock taken over by another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// Redis is a Locker backed by SET NX with a TTL, shared across API replicas.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis constructs a Redis locker. Keys are stored as prefix+key.
func NewRedis(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

// TryAcquire implements Locker.
func (r *Redis) TryAcquire(ctx context.Context, key string) (Release, error) {
	fullKey := r.prefix + key
	token := uuid.NewString()

	ok, err := r.rdb.SetNX(ctx, fullKey, token, r.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}

	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, r.rdb, []string{fullKey}, token).Err()
	}, nil
}
