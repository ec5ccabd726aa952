package pagesource

import (
	"context"
	"errors"
	"fmt"

	"github.com/dbehnke/mcdu429/internal/display"
	"github.com/go-redis/redis/v8"
)

// redisClient is the part of *redis.Client the source uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// RedisSource reads ProSim XML stored under one Redis key. A simulator
// bridge keeps the key current.
type RedisSource struct {
	name string
	key  string
	db   redisClient
}

func NewRedisSource(name, addr, key string) *RedisSource {
	return &RedisSource{
		name: name,
		key:  key,
		db:   redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (s *RedisSource) Name() string { return s.name }

func (s *RedisSource) Fetch(ctx context.Context) (display.Snapshot, error) {
	val, err := s.db.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return display.Snapshot{}, fmt.Errorf("%w: key %q not set", ErrNoPage, s.key)
	}
	if err != nil {
		return display.Snapshot{}, fmt.Errorf("redis get %q: %w", s.key, err)
	}
	return ParseProSimXML(val)
}

func (s *RedisSource) Close() error {
	return s.db.Close()
}
