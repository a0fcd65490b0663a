package store_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/simple-items-server/store"
)

// setupRedis returns a store under a key prefix unique to the test, skipping
// when no server is reachable.
func setupRedis(t *testing.T, opts ...store.Option) *store.RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: time.Second})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available (%s): %v", addr, err)
	}

	prefix := fmt.Sprintf("items_test_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	})
	return store.NewRedisStore(client, prefix, opts...)
}

func TestRedisStore(t *testing.T) {
	runStoreTests(t, setupRedis(t), "999")
}

func TestRedisStoreSequential(t *testing.T) {
	runSequentialTests(t, setupRedis(t))
}

func TestRedisStoreScenario(t *testing.T) {
	s := setupRedis(t, store.WithClock(frozenClock()))
	runScenario(t, s)

	items, err := s.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, items)
}
