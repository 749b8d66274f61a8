package redis

import (
	"context"
	"time"

	"github.com/goodtune/sitetime/internal/storage"
	"github.com/redis/go-redis/v9"
)

type aggregateStore struct {
	client *redis.Client
	prefix string
}

// Get reads the requested fields; with no fields, all of them.
func (s *aggregateStore) Get(ctx context.Context, fields ...storage.Field) (storage.Record, error) {
	if len(fields) == 0 {
		fields = storage.AllFields
	}

	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = fieldKey(s.prefix, f)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return storage.Record{}, err
	}

	return parseValues(fields, values)
}

// Set atomically writes every field present in rec.
func (s *aggregateStore) Set(ctx context.Context, rec storage.Record) error {
	fields := rec.Fields()
	if len(fields) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fields)+1)
	args := make([]interface{}, 0, len(fields)+1)
	for _, f := range fields {
		data, err := storage.EncodeField(rec, f)
		if err != nil {
			return err
		}
		keys = append(keys, fieldKey(s.prefix, f))
		args = append(args, string(data))
	}
	keys = append(keys, updatedAtKey(s.prefix))
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))

	return setFields.Run(ctx, s.client, keys, args...).Err()
}
