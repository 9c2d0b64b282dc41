package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const updateKeyPrefix = "picgen:update:"

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(addr, password string, db int, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// FirstSeen marks key as seen and reports whether this call was the first to do so.
// The mark expires after the store's ttl.
func (s *Store) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, updateKeyPrefix+key, time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Forget drops the mark so the key can be processed again.
func (s *Store) Forget(ctx context.Context, key string) error {
	err := s.rdb.Del(ctx, updateKeyPrefix+key).Err()
	if err != nil && err != redis.Nil {
		return err
	}
	return nil
}
