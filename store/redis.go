package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps items in Redis.
//
// Keys:
//
//	<prefix>:seq        # INCR counter for ids
//	<prefix>:ids        # sorted set of live ids, scored by id
//	<prefix>:item:<id>  # JSON item
type RedisStore struct {
	client *redis.Client
	prefix string
	settings
}

// NewRedisStore wraps an existing client. Keys are namespaced by prefix.
func NewRedisStore(client *redis.Client, prefix string, opts ...Option) *RedisStore {
	if prefix == "" {
		prefix = "items"
	}
	return &RedisStore{client: client, prefix: prefix, settings: newSettings(opts)}
}

func (s *RedisStore) seqKey() string {
	return s.prefix + ":seq"
}

func (s *RedisStore) idsKey() string {
	return s.prefix + ":ids"
}

func (s *RedisStore) itemKey(id int64) string {
	return fmt.Sprintf("%s:item:%d", s.prefix, id)
}

func decodeItem(data string) (Item, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("store: empty item document")
	}
	return normalize(doc), nil
}

func (s *RedisStore) Create(ctx context.Context, data map[string]any) (Item, error) {
	data, err := s.cast(data, true)
	if err != nil {
		return nil, err
	}
	id, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis next id: %w", err)
	}
	it, err := newItem(id, data, s.clock.Now())
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(it)
	if err != nil {
		return nil, err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.itemKey(id), raw, 0)
		pipe.ZAdd(ctx, s.idsKey(), &redis.Z{Score: float64(id), Member: id})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: redis create: %w", err)
	}
	return it, nil
}

func (s *RedisStore) List(ctx context.Context) ([]Item, error) {
	ids, err := s.client.ZRange(ctx, s.idsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis list: %w", err)
	}
	if len(ids) == 0 {
		return []Item{}, nil
	}
	keys := make([]string, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		keys = append(keys, s.itemKey(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis list: %w", err)
	}
	items := make([]Item, 0, len(values))
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			// removed between ZRANGE and MGET
			continue
		}
		it, err := decodeItem(data)
		if err != nil {
			s.logger.Warn("skipping unreadable item", "key", keys[i], "error", err)
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *RedisStore) FindByID(ctx context.Context, id string) (Item, error) {
	n, ok := integralID(id)
	if !ok {
		return nil, nil
	}
	data, err := s.client.Get(ctx, s.itemKey(n)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: redis get: %w", err)
	}
	return decodeItem(data)
}

func (s *RedisStore) Update(ctx context.Context, id string, data map[string]any) (Item, error) {
	data, err := s.cast(data, false)
	if err != nil {
		return nil, err
	}
	n, ok := integralID(id)
	if !ok {
		return nil, ErrNotFound
	}
	key := s.itemKey(n)

	var updated Item
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		existing, err := decodeItem(raw)
		if err != nil {
			return err
		}
		updated, err = mergeItem(existing, data, s.clock.After(existing.LastUpdate()))
		if err != nil {
			return err
		}
		b, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: redis update: %w", err)
	}
	return updated, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, ok := integralID(id)
	if !ok {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.itemKey(n))
		pipe.ZRem(ctx, s.idsKey(), n)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: redis delete: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
