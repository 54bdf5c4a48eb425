package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flor3z/noko-bot/internal/arena"
)

// DefaultRedisStateKey is the hash holding the arena document.
const DefaultRedisStateKey = "noko:arena:state"

// RedisConfig configures the Redis state store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisStateStore keeps the arena document in a Redis hash with a version
// field, written under WATCH.
type RedisStateStore struct {
	client *redis.Client
	key    string
}

var _ arena.StateStore = (*RedisStateStore)(nil)

// NewRedisStateStore connects to Redis and verifies the connection.
func NewRedisStateStore(ctx context.Context, cfg RedisConfig) (*RedisStateStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewRedisStateStoreFromClient(client, cfg.Key), nil
}

// NewRedisStateStoreFromClient wraps an existing client.
func NewRedisStateStoreFromClient(client *redis.Client, key string) *RedisStateStore {
	if key == "" {
		key = DefaultRedisStateKey
	}
	return &RedisStateStore{client: client, key: key}
}

// Close closes the Redis connection
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Load implements arena.StateStore.
func (s *RedisStateStore) Load(ctx context.Context) (*arena.State, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("loading arena state: %w", err)
	}
	if len(fields) == 0 {
		st := &arena.State{}
		st.Normalize()
		return st, nil
	}

	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing arena state version: %w", err)
	}
	return decodeState([]byte(fields["document"]), version)
}

// Save implements arena.StateStore.
func (s *RedisStateStore) Save(ctx context.Context, st *arena.State) error {
	document, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding arena state: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, s.key, "version").Int64()
		if errors.Is(err, redis.Nil) {
			current = 0
		} else if err != nil {
			return fmt.Errorf("reading arena state version: %w", err)
		}
		if current != st.Version {
			return arena.ErrVersionConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.key,
				"version", st.Version+1,
				"document", document,
				"updated_at", time.Now().UTC().Format(time.RFC3339),
			)
			return nil
		})
		return err
	}, s.key)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		return arena.ErrVersionConflict
	case err != nil:
		return err
	}

	st.Version++
	return nil
}
