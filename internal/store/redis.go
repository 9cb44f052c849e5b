package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore exposes a go-redis client through the backend capability
// interfaces. Message maps are Redis hashes, room id sets are Redis sets and
// opaque values are JSON strings.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an already connected client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// RedisClient returns the underlying client.
func (s *RedisStore) RedisClient() redis.UniversalClient {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// PutValue stores value under key.
func (s *RedisStore) PutValue(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

// AddToSet adds members to the set at key.
func (s *RedisStore) AddToSet(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SAdd(ctx, key, args...).Err()
}

// UpdateMap merges fields into the hash at key. Non-string values are
// stored as their JSON encoding.
func (s *RedisStore) UpdateMap(ctx context.Context, key string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		switch t := v.(type) {
		case string:
			values[k] = t
		default:
			data, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("encode field %q: %w", k, err)
			}
			values[k] = string(data)
		}
	}
	return s.client.HSet(ctx, key, values).Err()
}

// ReadSet returns the raw SMEMBERS reply. The reply is a list under both
// RESP2 and RESP3.
func (s *RedisStore) ReadSet(ctx context.Context, key string) (any, error) {
	v, err := s.client.Do(ctx, "SMEMBERS", key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return v, err
}

// ReadMap returns the raw HGETALL reply for key: a map under RESP3, a flat
// field/value list under RESP2.
func (s *RedisStore) ReadMap(ctx context.Context, key string) (any, error) {
	v, err := s.client.Do(ctx, "HGETALL", key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return v, err
}

// ReadBatch pipelines HGETALL for every key. A failing key yields a nil
// entry; only a failure of the whole pipeline is returned as an error.
func (s *RedisStore) ReadBatch(ctx context.Context, keys []string) ([]any, error) {
	pipe := s.client.Pipeline()
	cmds := make([]*redis.Cmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Do(ctx, "HGETALL", key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		allFailed := true
		for _, cmd := range cmds {
			if cmd.Err() == nil {
				allFailed = false
				break
			}
		}
		if allFailed {
			return nil, err
		}
	}

	out := make([]any, len(keys))
	for i, cmd := range cmds {
		v, err := cmd.Result()
		if err != nil {
			continue
		}
		out[i] = v
	}
	return out, nil
}

// Get reads a JSON value stored with PutValue.
func (s *RedisStore) Get(ctx context.Context, key string) (any, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}
