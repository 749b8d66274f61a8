package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/goodtune/sitetime/internal/config"
	"github.com/goodtune/sitetime/internal/storage"
	"github.com/goodtune/sitetime/internal/storage/bolt"
	"github.com/goodtune/sitetime/internal/storage/redis"
)

// stores holds the opened aggregate and backup backends.
type stores struct {
	aggregate storage.Store
	backup    *bolt.Store
}

// openStores opens both backends. A bolt aggregate sharing the backup file
// reuses the backup's handle.
func openStores(cfg config.StorageConfig) (*stores, error) {
	backup, err := bolt.Open(cfg.Backup.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup store: %w", lockHint(err))
	}

	var aggregate storage.Store
	if cfg.Type == "bolt" && samePath(cfg.Bolt.Path, cfg.Backup.Path) {
		// One bbolt file serves both roles; its buckets are disjoint.
		aggregate = backup
	} else {
		aggregate, err = openAggregate(cfg)
	}
	if err != nil {
		_ = backup.Close()
		return nil, err
	}

	return &stores{aggregate: aggregate, backup: backup}, nil
}

// openAggregate opens only the aggregate store. The reporting commands use
// it so they never contend for the backup file held by a running daemon.
func openAggregate(cfg config.StorageConfig) (storage.Store, error) {
	var (
		aggregate storage.Store
		err       error
	)
	switch cfg.Type {
	case "redis", "":
		aggregate, err = redis.Open(cfg.Redis)
	case "bolt":
		aggregate, err = bolt.Open(cfg.Bolt.Path)
	default:
		err = fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open aggregate store: %w", lockHint(err))
	}
	return aggregate, nil
}

func lockHint(err error) error {
	if errors.Is(err, bolt.ErrLocked) {
		return fmt.Errorf("%w (is sitetime serve running? use the HTTP API at /v1 instead)", err)
	}
	return err
}

func (s *stores) Close() error {
	var errs []error
	if s.aggregate != storage.Store(s.backup) {
		errs = append(errs, s.aggregate.Close())
	}
	errs = append(errs, s.backup.Close())
	return errors.Join(errs...)
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}
