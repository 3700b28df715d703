package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const leaseKeyPrefix = "auth:lease:"

// releaseScript deletes the lease only if it is still held by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisJobLease is a best-effort single-holder lease built on SET NX PX.
// It keeps periodic jobs from overlapping across instances; it is not a
// fencing lock.
type RedisJobLease struct {
	client redis.UniversalClient
}

func NewRedisJobLease(client redis.UniversalClient) *RedisJobLease {
	return &RedisJobLease{client: client}
}

func (l *RedisJobLease) Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, leaseKeyPrefix+name, holder, ttl).Result()
}

func (l *RedisJobLease) Release(ctx context.Context, name, holder string) error {
	return releaseScript.Run(ctx, l.client, []string{leaseKeyPrefix + name}, holder).Err()
}
