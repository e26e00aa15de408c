package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"reconledger/internal/config"
)

// DefaultRedisKey 默认账本列表键
const DefaultRedisKey = "reconledger:ledger"

// RedisStore 以 Redis 列表保存条目，RPUSH 追加、LRANGE 加载
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore 连接 Redis 并探活
func NewRedisStore(ctx context.Context, cfg *config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}

	key := cfg.Key
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}, nil
}

func (s *RedisStore) Load(ctx context.Context) ([]Entry, error) {
	items, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", s.key, err)
	}

	entries := make([]Entry, 0, len(items))
	for i, item := range items {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("redis ledger item %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Append 在 WATCH 事务中确认列表末尾是前驱条目后再 RPUSH，键被并发修改时返回 ErrStaleTail
func (s *RedisStore) Append(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		var tail *Entry
		last, err := tx.LIndex(ctx, s.key, -1).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("lindex %s: %w", s.key, err)
		default:
			var e Entry
			if err := json.Unmarshal([]byte(last), &e); err != nil {
				return fmt.Errorf("redis ledger tail: %w", err)
			}
			tail = &e
		}
		if err := checkTail(tail, entry); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, s.key, data)
			return nil
		})
		return err
	}, s.key)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %s modified concurrently", ErrStaleTail, s.key)
	}
	return err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
