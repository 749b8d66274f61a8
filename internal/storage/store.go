package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Aggregate() AggregateStore
}

// AggregateStore is the primary persistence backend for tracked usage.
//
// Get returns only the requested fields that are present in the store; a
// missing field is left absent in the returned Record rather than reported
// as an error. Set writes every field present in the Record and leaves the
// others untouched.
type AggregateStore interface {
	Get(ctx context.Context, fields ...Field) (Record, error)
	Set(ctx context.Context, rec Record) error
}

// BackupStore is a synchronous, process-local key/value store used purely
// for recovery. Get returns ErrNotFound for an unknown key.
type BackupStore interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}
