package bolt

import (
	"context"

	"go.etcd.io/bbolt"
)

type backupStore struct {
	db *bbolt.DB
}

func (s *backupStore) Get(key string) ([]byte, error) {
	return getBucketValue(context.Background(), s.db, bucketBackup, key)
}

func (s *backupStore) Set(key string, value []byte) error {
	return putBucketValue(context.Background(), s.db, bucketBackup, key, value)
}
