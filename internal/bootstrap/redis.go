package bootstrap

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"chatreel/internal/config"
	"chatreel/internal/pkg/logger"
	"chatreel/internal/worker/queue"
)

// OpenQueue returns nil when the queue is disabled. An unreachable Redis is
// only logged: the sweeper keeps the system correct without it.
func OpenQueue(ctx context.Context, cfg config.QueueConfig, log *logger.Logger) (*queue.RedisQueue, func() error) {
	if !cfg.Enabled {
		log.Info("queue disabled, relying on the sweeper")
		return nil, func() error { return nil }
	}

	rdb := redis.NewClient(redisOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Warn("redis unreachable at startup", "addr", cfg.RedisAddr)
	} else {
		log.Info("Redis connected", "addr", cfg.RedisAddr, "queue", cfg.Name)
	}

	return queue.NewRedisQueue(rdb, cfg.Name), rdb.Close
}

// redisOptions makes socket reads and writes honour context deadlines, so the
// enqueue timeout also bounds a connected but unresponsive Redis.
func redisOptions(cfg config.QueueConfig) *redis.Options {
	return &redis.Options{
		Addr:                  cfg.RedisAddr,
		Password:              cfg.RedisPassword,
		DialTimeout:           2 * time.Second,
		MaxRetries:            1,
		ContextTimeoutEnabled: true,
	}
}
