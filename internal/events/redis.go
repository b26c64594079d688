package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/muzz-introductions/internal/config"
)

// NewRedisClient initializes a Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisClient(cfg *config.Config) *redis.Client {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return redis.NewClient(opts)
}

// RedisSink pushes events as JSON onto a capped Redis list (newest first).
type RedisSink struct {
	Client *redis.Client
	Key    string
	Cap    int64
}

// NewRedisSink builds a sink from config.
func NewRedisSink(client *redis.Client, cfg *config.Config) *RedisSink {
	return &RedisSink{Client: client, Key: cfg.Redis.EventsKey, Cap: cfg.Redis.EventsCap}
}

func (s *RedisSink) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

func (s *RedisSink) Write(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	pipe := s.Client.TxPipeline()
	pipe.LPush(ctx, s.Key, b)
	if s.Cap > 0 {
		pipe.LTrim(ctx, s.Key, 0, s.Cap-1)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to n of the newest events.
func (s *RedisSink) Recent(ctx context.Context, n int64) ([]Event, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := s.Client.LRange(ctx, s.Key, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(raw))
	for _, r := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}
