package db

import (
	"github.com/mikepolyak/fitness-vibe-sub002/internal/config"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns nil when no address is configured. Callers treat a
// nil client as "feature disabled" (no live fan-out, no cached leaderboard).
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
