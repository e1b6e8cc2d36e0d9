package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vidforensics/backend/pkg/logger"
)

const keyPrefix = "vidforensics"

// Client wraps go-redis for the small set of shared counters the service
// keeps. Analyses themselves are never stored.
type Client struct {
	client *redis.Client
}

func NewClient(ctx context.Context, addr, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", addr))
	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// IncrWindow increments the counter for key in the fixed window containing
// now and returns the new count together with the time left in the window.
func (c *Client) IncrWindow(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Duration, error) {
	k := WindowKey(key, window, now)

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to increment window counter: %w", err)
	}

	return incr.Val(), windowRemaining(window, now), nil
}

// WindowKey names the counter for the fixed window of length window that
// contains now.
func WindowKey(key string, window time.Duration, now time.Time) string {
	if window <= 0 {
		window = time.Minute
	}
	slot := now.UnixNano() / int64(window)
	return fmt.Sprintf("%s:ratelimit:%s:%d", keyPrefix, key, slot)
}

func windowRemaining(window time.Duration, now time.Time) time.Duration {
	if window <= 0 {
		window = time.Minute
	}
	elapsed := time.Duration(now.UnixNano() % int64(window))
	return window - elapsed
}
