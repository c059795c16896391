package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edgecomet/httpbench/internal/common/configtypes"
)

const connectTimeout = 5 * time.Second

type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
	config *configtypes.RedisConfig
}

// NewClient connects and pings Redis; the library defaults apply for
// pool size and read/write timeouts.
func NewClient(cfg *configtypes.RedisConfig, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: connectTimeout,
	})

	client := &Client{
		rdb:    rdb,
		logger: logger,
		config: cfg,
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Debug("Redis client connected",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB))

	return client, nil
}

func (c *Client) Ping(ctx context.Context) error {
	result, err := c.rdb.Ping(ctx).Result()
	if err != nil {
		c.logger.Error("Redis ping failed", zap.Error(err))
		return err
	}

	if result != "PONG" {
		return fmt.Errorf("unexpected ping response: %s", result)
	}

	return nil
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	result, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		c.logger.Error("Redis GET failed",
			zap.String("key", key),
			zap.Error(err))
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	return result, nil
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	err := c.rdb.Set(ctx, key, value, expiration).Err()
	if err != nil {
		c.logger.Error("Redis SET failed",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Error("Redis DEL failed",
			zap.Strings("keys", keys),
			zap.Error(err))
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// PushCapped prepends value to a list and trims it to maxLen entries.
// It returns the members that fell off the tail.
func (c *Client) PushCapped(ctx context.Context, key string, value string, maxLen int) ([]string, error) {
	if maxLen <= 0 {
		return nil, fmt.Errorf("maxLen must be positive")
	}

	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, value)
	evicted := pipe.LRange(ctx, key, int64(maxLen), -1)
	pipe.LTrim(ctx, key, 0, int64(maxLen-1))

	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("Redis capped push failed",
			zap.String("key", key),
			zap.Error(err))
		return nil, fmt.Errorf("redis capped push failed: %w", err)
	}

	return evicted.Val(), nil
}

// LRange returns list members between start and stop (inclusive)
func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	result, err := c.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		c.logger.Error("Redis LRANGE failed",
			zap.String("key", key),
			zap.Error(err))
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}
	return result, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
