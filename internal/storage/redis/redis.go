// Package redis stores the aggregate state in Redis, one key per field under
// a configurable prefix.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/sitetime/internal/config"
	"github.com/goodtune/sitetime/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "sitetime"
	pingTimeout      = 5 * time.Second
)

// Store is a storage.Store backed by a Redis client.
type Store struct {
	client *redis.Client
	prefix string
}

// Open connects to Redis and verifies the server answers.
func Open(cfg config.RedisConfig) (*Store, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Store{client: client, prefix: prefix}, nil
}

// clientOptions maps the configuration onto go-redis options. A zero port
// means Host already carries one.
func clientOptions(cfg config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{
		Addr:         cfg.Host,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
	if cfg.Port > 0 {
		opts.Addr = cfg.Host + ":" + strconv.Itoa(cfg.Port)
	}

	timeouts := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"dial_timeout", cfg.DialTimeout, &opts.DialTimeout},
		{"read_timeout", cfg.ReadTimeout, &opts.ReadTimeout},
		{"write_timeout", cfg.WriteTimeout, &opts.WriteTimeout},
	}
	for _, t := range timeouts {
		if t.value == "" {
			continue
		}
		d, err := time.ParseDuration(t.value)
		if err != nil {
			return nil, fmt.Errorf("invalid redis %s %q: %w", t.name, t.value, err)
		}
		*t.dst = d
	}

	return opts, nil
}

// Close releases the client's connections.
func (s *Store) Close() error {
	return s.client.Close()
}

// Aggregate returns the aggregate store view of s.
func (s *Store) Aggregate() storage.AggregateStore {
	return &aggregateStore{client: s.client, prefix: s.prefix}
}
