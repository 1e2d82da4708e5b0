package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dhanmatrix/dhanmatrix/internal/core"
	apperrors "github.com/dhanmatrix/dhanmatrix/internal/errors"
)

// minLockTTL bounds SetIfNotExists so a lock can never be left without expiry.
const minLockTTL = time.Second

var errEmptyCacheKey = errors.New("cache key cannot be empty")

// RedisCacheRepo backs the document cache tier and the admin setup lock.
type RedisCacheRepo struct {
	client redis.UniversalClient
}

var _ core.CacheRepository = (*RedisCacheRepo)(nil)

// NewRedisCacheRepo wraps client.
func NewRedisCacheRepo(client redis.UniversalClient) *RedisCacheRepo {
	return &RedisCacheRepo{client: client}
}

// unavailable marks a transport failure so callers can tell it from a miss.
func unavailable(op, key string, err error) error {
	return apperrors.Network(fmt.Errorf("redis %s %s: %w", op, key, err), "cache unavailable")
}

func (r *RedisCacheRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errEmptyCacheKey
	}
	if err := r.client.Set(ctx, key, value, max(ttl, 0)).Err(); err != nil {
		return unavailable("SET", key, err)
	}
	return nil
}

func (r *RedisCacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errEmptyCacheKey
	}
	value, err := r.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, unavailable("GET", key, err)
	}
	return value, nil
}

func (r *RedisCacheRepo) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errEmptyCacheKey
	}
	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, unavailable("DEL", key, err)
	}
	return n > 0, nil
}

// SetIfNotExists issues a single SET NX PX so the key and its expiry land together.
func (r *RedisCacheRepo) SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, errEmptyCacheKey
	}
	err := r.client.SetArgs(ctx, key, value, redis.SetArgs{Mode: "NX", TTL: max(ttl, minLockTTL)}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		// NX lost: the key already exists.
		return false, nil
	case err != nil:
		return false, unavailable("SET NX", key, err)
	}
	return true, nil
}
