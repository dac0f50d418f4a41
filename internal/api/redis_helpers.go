package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithTTL bumps a fixed-window counter. Both commands ride one
// pipeline round trip; ExpireNX arms the window only when the key has
// no TTL yet, so later increments never extend it.
func incrWithTTL(ctx context.Context, client redis.UniversalClient, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
