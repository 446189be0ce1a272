/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package statsstore publishes limiter snapshots to Redis and reads them back.
package statsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulsefit/aithrottle/throttle"
)

// ErrNoSnapshot is returned by Latest when nothing was published or the snapshot has expired.
var ErrNoSnapshot = errors.New("statsstore: no snapshot")

// NewClient creates a Redis client from the config.
func NewClient(cfg *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Store keeps the latest limiter snapshot under a single key.
type Store struct {
	client redis.Cmdable
	key    string
}

// NewStore creates a Store that uses the key "{keyPrefix}:stats".
func NewStore(client redis.Cmdable, keyPrefix string) *Store {
	return &Store{client: client, key: keyPrefix + ":stats"}
}

// Key returns the Redis key of the snapshot.
func (s *Store) Key() string {
	return s.key
}

// Save overwrites the snapshot. It expires after ttl (0 means never).
func (s *Store) Save(ctx context.Context, stats throttle.Stats, ttl time.Duration) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if err = s.client.Set(ctx, s.key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	return nil
}

// Latest returns the last saved snapshot.
func (s *Store) Latest(ctx context.Context) (throttle.Stats, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return throttle.Stats{}, ErrNoSnapshot
		}
		return throttle.Stats{}, fmt.Errorf("load stats: %w", err)
	}
	var stats throttle.Stats
	if err = json.Unmarshal(data, &stats); err != nil {
		return throttle.Stats{}, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
