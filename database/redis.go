package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"messenger-core/config"
)

// RedisConnect opens a client on logical database db and checks it answers.
func RedisConnect(ctx context.Context, s config.RedisSettings, db int, log *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     s.Addr(),
		Password: s.Password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect redis db %d: %w", db, err)
	}
	log.Info("connection opened to Redis", zap.Int("db", db))
	return client, nil
}
