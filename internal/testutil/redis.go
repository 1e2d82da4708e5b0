package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCandidates are tried in order when REDIS_ADDR is unset: the compose service
// name, a plain local install, then the test profile port.
var redisCandidates = []string{"redis:6379", "localhost:6379", "localhost:56379"}

// SetupTestRedis returns a client on a flushed, reserved logical DB. The caller closes it.
// The test is skipped when no Redis answers.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	addr, ok := findRedis(t)
	if !ok {
		skipOrFail(t, requireRedis(), "Redis not available for testing")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: reserveRedisDB(t, addr)})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		closeAndLog(t, "redis client", client)
		skipOrFail(t, requireRedis(), "Redis not usable for testing:", err)
	}
	return client
}

func findRedis(t TestingTB) (string, bool) {
	candidates := redisCandidates
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		candidates = []string{addr}
	}
	for _, addr := range candidates {
		if pingRedis(t, addr) {
			return addr, true
		}
	}
	return "", false
}

func pingRedis(t TestingTB, addr string) bool {
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer closeAndLog(t, "redis probe", client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Logf("Redis not available at %s: %v", addr, err)
		return false
	}
	return true
}

// reserveRedisDB picks TEST_REDIS_DB, or claims one of DBs 1..15 with a lock key in DB 0
// so parallel packages never flush each other's data. It falls back to DB 1.
func reserveRedisDB(t TestingTB, addr string) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
		t.Logf("Invalid TEST_REDIS_DB=%q, falling back to auto-select", v)
	}

	meta := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
	defer closeAndLog(t, "redis meta client", meta)

	owner := fmt.Sprintf("%d:%d", os.Getpid(), time.Now().UnixNano())
	for i := 1; i <= 15; i++ {
		key := fmt.Sprintf("dhanmatrix:testutil:db_lock:%d", i)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		ok, err := meta.SetNX(ctx, key, owner, 30*time.Minute).Result()
		cancel()
		if err != nil || !ok {
			continue
		}
		t.Cleanup(func() { releaseRedisDB(t, addr, key) })
		return i
	}
	return 1
}

func releaseRedisDB(t TestingTB, addr, key string) {
	c := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
	defer closeAndLog(t, "redis cleanup client", c)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Del(ctx, key).Err(); err != nil {
		t.Logf("warning: failed to release redis db lock %s: %v", key, err)
	}
}
