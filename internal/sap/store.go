package sap

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKey = "sap:b1session"

// RedisSessionStore 基于redis的会话存储，多个实例共用一次登录
type RedisSessionStore struct {
	rdb *redis.Client
}

func NewRedisSessionStore(rdb *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb}
}

func (s *RedisSessionStore) Get(ctx context.Context) (string, error) {
	id, err := s.rdb.Get(ctx, sessionKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	return id, err
}

func (s *RedisSessionStore) Set(ctx context.Context, sessionID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, sessionKey, sessionID, ttl).Err()
}
