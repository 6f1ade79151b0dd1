// internal/store/redis.go
//
// Redis implementation of the Store interface, for running several server
// instances against shared session state.
//
// Characteristics:
//   - One JSON value per session under "<prefix><id>", TTL refreshed on every write.
//   - Update uses WATCH/MULTI: fn runs on a private copy and the write only
//     commits if nobody else touched the key in between; otherwise it retries.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/escaperoom/internal/game"
)

const (
	defaultKeyPrefix  = "escaperoom:session:"
	maxUpdateAttempts = 5
)

// RedisStore keeps sessions in Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects using a redis:// URL and verifies the connection.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: defaultKeyPrefix, ttl: ttl}
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error { return r.client.Close() }

func (r *RedisStore) key(id string) string { return r.prefix + id }

func (r *RedisStore) Create(ctx context.Context, s *game.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.key(s.ID), b, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrExists, s.ID)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*game.Session, error) {
	b, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeSession(b)
}

func (r *RedisStore) Update(ctx context.Context, id string, fn func(*game.Session) error) (*game.Session, error) {
	key := r.key(id)
	var out *game.Session

	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		s, err := decodeSession(b)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		nb, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, nb, r.ttl)
			return nil
		})
		if err == nil {
			out = s
		}
		return err
	}

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			log.Debug().Str("sessionId", id).Int("attempt", attempt).Msg("session update conflict, retrying")
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("update session %s: too many concurrent writers", id)
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func decodeSession(b []byte) (*game.Session, error) {
	var s game.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}
