package database

import (
	"fmt"

	"github.com/go-redis/redis/v8"

	"pkhunter/config"
)

// ConnectRedis connects and pings the configured Redis server.
func ConnectRedis(cfg *config.CacheConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := NewContextWithTimeout(ShortDBTimeout)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// CloseRedis closes the client.
func CloseRedis(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
