package bolt

import (
	"context"
	"fmt"

	"github.com/goodtune/sitetime/internal/storage"
	"go.etcd.io/bbolt"
)

type aggregateStore struct {
	db *bbolt.DB
}

func (s *aggregateStore) Get(ctx context.Context, fields ...storage.Field) (storage.Record, error) {
	if len(fields) == 0 {
		fields = storage.AllFields
	}

	var rec storage.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketState))
		if b == nil {
			return nil
		}
		for _, f := range fields {
			value := b.Get([]byte(f))
			if value == nil {
				continue
			}
			if err := storage.DecodeField(&rec, f, value); err != nil {
				return err
			}
		}
		return nil
	})
	return rec, err
}

// Set writes all present fields in a single transaction.
func (s *aggregateStore) Set(ctx context.Context, rec storage.Record) error {
	fields := rec.Fields()
	if len(fields) == 0 {
		return nil
	}

	encoded := make(map[storage.Field][]byte, len(fields))
	for _, f := range fields {
		data, err := storage.EncodeField(rec, f)
		if err != nil {
			return err
		}
		encoded[f] = data
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketState))
		if b == nil {
			return fmt.Errorf("state bucket missing")
		}
		for f, data := range encoded {
			if err := b.Put([]byte(f), data); err != nil {
				return fmt.Errorf("put %s: %w", f, err)
			}
		}
		return nil
	})
}
