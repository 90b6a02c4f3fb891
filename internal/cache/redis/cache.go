package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"example.com/abtest/internal/domain"
)

const keyPrefix = "abtest:assignment:"

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*goredis.Client, error) {
	var client *goredis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := goredis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = goredis.NewClient(opt)
	} else {
		client = goredis.NewClient(&goredis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// AssignmentCache keeps token -> variant for the hot path of POST /variant.
// Assignments never change, so a cached entry can only expire, never go stale.
type AssignmentCache struct {
	client goredis.Cmdable
	ttl    time.Duration
}

func NewAssignmentCache(client goredis.Cmdable, ttl time.Duration) *AssignmentCache {
	return &AssignmentCache{client: client, ttl: ttl}
}

func (c *AssignmentCache) Get(ctx context.Context, userToken string) (domain.Variant, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+userToken).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return domain.Variant(raw), true, nil
}

func (c *AssignmentCache) Set(ctx context.Context, userToken string, v domain.Variant) error {
	return c.client.Set(ctx, keyPrefix+userToken, string(v), c.ttl).Err()
}
