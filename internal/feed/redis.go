package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	redis "github.com/redis/go-redis/v9"

	"github.com/jengzang/crime-risk-backend-go/internal/logging"
	"github.com/jengzang/crime-risk-backend-go/internal/models"
)

// RedisConfig configures the redis list consumer.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Key          string
	BlockTimeout time.Duration
}

type popper interface {
	Pop(ctx context.Context) ([]byte, error)
	Close() error
}

// Consumer wraps a redis list popper.
type Consumer struct {
	client       *redis.Client
	key          string
	blockTimeout time.Duration
}

// NewConsumer creates a redis consumer for a list-based queue.
func NewConsumer(cfg RedisConfig) (*Consumer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	if cfg.BlockTimeout == 0 {
		cfg.BlockTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Consumer{
		client:       client,
		key:          cfg.Key,
		blockTimeout: cfg.BlockTimeout,
	}, nil
}

// Ping checks connectivity.
func (c *Consumer) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Pop pops one message, or returns nil when the block timeout elapses.
func (c *Consumer) Pop(ctx context.Context) ([]byte, error) {
	res, err := c.client.BLPop(ctx, c.blockTimeout, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	return c.client.Close()
}

// RedisSource decodes JSON live events popped from a redis list.
type RedisSource struct {
	pop popper
}

// NewRedisSource creates a source over a new consumer.
func NewRedisSource(cfg RedisConfig) (*RedisSource, error) {
	c, err := NewConsumer(cfg)
	if err != nil {
		return nil, err
	}
	return &RedisSource{pop: c}, nil
}

// Next pops at most one event. Undecodable payloads are logged and dropped.
func (s *RedisSource) Next(ctx context.Context) ([]models.LiveEvent, error) {
	payload, err := s.pop.Pop(ctx)
	if err != nil || payload == nil {
		return nil, err
	}

	var ev models.LiveEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		logging.Warn().Err(err).Int("bytes", len(payload)).Msg("dropping malformed live payload")
		return nil, nil
	}
	return []models.LiveEvent{ev}, nil
}

// Close closes the underlying consumer.
func (s *RedisSource) Close() error {
	return s.pop.Close()
}
