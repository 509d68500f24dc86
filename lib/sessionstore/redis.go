// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/authbridge/lib/codec"
)

// RedisOptions configures a Redis store.
type RedisOptions struct {
	// KeyPrefix namespaces the session key. The session lives at
	// KeyPrefix + "session".
	KeyPrefix string

	// TTL expires the stored session. Zero stores it without expiry.
	TTL time.Duration
}

// Redis stores the session as one CBOR value in Redis. Several module
// instances pointed at the same key share one session.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// DialRedis parses a redis:// URL and returns a store using a new
// client. The connection is verified lazily on first use.
func DialRedis(redisURL string, options RedisOptions) (*Redis, error) {
	redisOptions, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	return NewRedis(redis.NewClient(redisOptions), options), nil
}

// NewRedis wraps an existing client. Close closes the client.
func NewRedis(client *redis.Client, options RedisOptions) *Redis {
	return &Redis{
		client: client,
		key:    options.KeyPrefix + "session",
		ttl:    options.TTL,
	}
}

// Key returns the redis key holding the session.
func (r *Redis) Key() string { return r.key }

func (r *Redis) Load(ctx context.Context) (Session, bool, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("loading session from redis: %w", err)
	}

	var session Session
	if err := codec.Unmarshal(data, &session); err != nil {
		return Session{}, false, fmt.Errorf("decoding session %s: %w", r.key, err)
	}
	return session, true, nil
}

func (r *Redis) Save(ctx context.Context, session Session) error {
	data, err := codec.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("saving session to redis: %w", err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("clearing session in redis: %w", err)
	}
	return nil
}

// Close releases the client's connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
