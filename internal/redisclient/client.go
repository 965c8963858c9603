package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	stockKeyPrefix = "stock:"
	guardKeyPrefix = "guard:"

	dialTimeout = 5 * time.Second
	opTimeout   = 2 * time.Second
)

// Client backs the settlement request guard and the stock read mirror
type Client struct {
	rdb *redis.Client
}

// NewClient connects to Redis and fails when the server does not answer a ping
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  dialTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping reports whether Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func stockKey(optionID int64) string {
	return stockKeyPrefix + strconv.FormatInt(optionID, 10)
}

// SetStock overwrites the mirrored quantity of an option
func (c *Client) SetStock(ctx context.Context, optionID int64, quantity int) error {
	if err := c.rdb.Set(ctx, stockKey(optionID), quantity, 0).Err(); err != nil {
		return fmt.Errorf("mirror stock of option %d: %w", optionID, err)
	}
	return nil
}

// AcquireLock claims key for ttl. It reports false when another holder has it.
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	acquired, err := c.rdb.SetNX(ctx, guardKeyPrefix+key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire guard %s: %w", key, err)
	}
	return acquired, nil
}

// ReleaseLock drops key so the same request may run again
func (c *Client) ReleaseLock(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, guardKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release guard %s: %w", key, err)
	}
	return nil
}
