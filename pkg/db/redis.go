package db

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bizdash/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// RedisRequired reports whether any configured component talks to redis.
func RedisRequired(cfg config.Config) bool {
	return cfg.StoreDriver == config.StoreDriverRedis || cfg.RateLimit.Enabled
}

// OpenRedis builds the shared redis client. The connection is only checked on
// start when a component needs it.
func OpenRedis(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.RedisAddr),
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if !RedisRequired(cfg) {
					return nil
				}
				if err := client.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
				}
				log.Info("redis connected", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
				return nil
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}
	return client
}
