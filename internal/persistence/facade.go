// Package persistence keeps the aggregate store and the local backup store
// consistent.
//
// Writes are fire-and-forget: Save returns immediately with a channel that
// later receives the write result. A single writer goroutine applies queued
// records in issue order, coalescing whatever accumulated while the previous
// write was in flight (last write wins per field). Every successful aggregate
// write is followed by a mirror of the latest timeData/history into the
// backup store.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/sitetime/internal/metrics"
	"github.com/goodtune/sitetime/internal/storage"
	"github.com/rs/zerolog"
)

// ErrClosed is returned for writes issued after Close.
var ErrClosed = errors.New("persistence: facade closed")

// Facade owns both persistence backends.
type Facade struct {
	aggregate storage.AggregateStore
	backup    storage.BackupStore
	backupKey string
	logger    zerolog.Logger

	mu      sync.Mutex
	pending storage.Record
	waiters []chan error
	current storage.Record // latest timeData/history handed to Save, Load or Recover
	closed  bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// New creates a facade and starts its writer goroutine.
func New(aggregate storage.AggregateStore, backup storage.BackupStore, backupKey string, logger zerolog.Logger) *Facade {
	f := &Facade{
		aggregate: aggregate,
		backup:    backup,
		backupKey: backupKey,
		logger:    logger.With().Str("component", "persistence").Logger(),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go f.run()
	return f
}

// Load reads every persisted field from the aggregate store.
func (f *Facade) Load(ctx context.Context) (storage.Record, error) {
	rec, err := f.aggregate.Get(ctx)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("aggregate", "get").Inc()
		return storage.Record{}, fmt.Errorf("load aggregate state: %w", err)
	}

	f.mu.Lock()
	f.remember(rec.Clone())
	f.mu.Unlock()

	return rec, nil
}

// LoadOrBackup reads the aggregate state like Load. When the aggregate store
// is unreadable it seeds timeData and history from the backup instead, so
// the next Save carries the backed-up totals rather than an empty day. The
// backup's update date stands in for lastReset. The returned bool reports
// whether the backup was used; an error means neither store was readable.
func (f *Facade) LoadOrBackup(ctx context.Context) (storage.Record, bool, error) {
	rec, loadErr := f.Load(ctx)
	if loadErr == nil {
		return rec, false, nil
	}

	backup, err := f.readBackup()
	if err != nil {
		return storage.Record{}, false, errors.Join(loadErr, fmt.Errorf("read backup: %w", err))
	}

	rec = storage.Record{
		TimeData: backup.TimeData,
		History:  backup.History,
	}
	if rec.TimeData == nil {
		rec.TimeData = storage.TimeData{}
	}
	if rec.History == nil {
		rec.History = storage.History{}
	}
	if !backup.LastUpdated.IsZero() {
		rec.LastReset = storage.String(backup.LastUpdated.Local().Format(storage.DateLayout))
	}

	f.mu.Lock()
	f.remember(rec.Clone())
	f.mu.Unlock()

	f.logger.Warn().
		Err(loadErr).
		Time("backup_updated", backup.LastUpdated).
		Int("sites", len(rec.TimeData)).
		Int("history_days", len(rec.History)).
		Msg("Aggregate store unreadable, seeded state from backup")

	return rec, true, nil
}

// Recover repairs empty aggregate fields from the backup store.
//
// timeData and history are considered independently: a field is taken from
// the backup only when the aggregate copy is absent or empty. A non-empty
// aggregate value always wins. When a backup exists the merged result is
// written back to the aggregate store. Recover returns the fields that were
// restored from the backup.
func (f *Facade) Recover(ctx context.Context) ([]storage.Field, error) {
	rec, err := f.aggregate.Get(ctx, storage.FieldTimeData, storage.FieldHistory)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("aggregate", "get").Inc()
		return nil, fmt.Errorf("read aggregate state: %w", err)
	}

	backup, err := f.readBackup()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			f.logger.Debug().Msg("No backup present, nothing to recover")
		} else {
			f.logger.Warn().Err(err).Msg("Backup unreadable, skipping recovery")
		}
		f.mu.Lock()
		f.remember(rec.Clone())
		f.mu.Unlock()
		return nil, nil
	}

	var restored []storage.Field
	merged := storage.Record{TimeData: rec.TimeData, History: rec.History}

	if len(merged.TimeData) == 0 && backup.TimeData != nil {
		merged.TimeData = backup.TimeData
		if len(backup.TimeData) > 0 {
			restored = append(restored, storage.FieldTimeData)
		}
	}
	if len(merged.History) == 0 && backup.History != nil {
		merged.History = backup.History
		if len(backup.History) > 0 {
			restored = append(restored, storage.FieldHistory)
		}
	}

	if merged.TimeData == nil {
		merged.TimeData = storage.TimeData{}
	}
	if merged.History == nil {
		merged.History = storage.History{}
	}

	if err := f.aggregate.Set(ctx, merged); err != nil {
		metrics.StoreErrors.WithLabelValues("aggregate", "set").Inc()
		return restored, fmt.Errorf("write recovered state: %w", err)
	}

	f.mu.Lock()
	f.remember(merged.Clone())
	f.mu.Unlock()

	if len(restored) > 0 {
		f.logger.Info().
			Interface("fields", restored).
			Time("backup_updated", backup.LastUpdated).
			Msg("Recovered aggregate state from backup")
	}

	return restored, nil
}

// Save queues rec for the aggregate store without blocking. The returned
// channel receives exactly one value once the write containing rec has
// settled; callers are free to ignore it.
func (f *Facade) Save(rec storage.Record) <-chan error {
	done := make(chan error, 1)
	rec = rec.Clone()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		done <- ErrClosed
		return done
	}
	f.pending = f.pending.Merge(rec)
	f.waiters = append(f.waiters, done)
	f.remember(rec)
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}

	return done
}

// Mirror writes the latest timeData and history to the backup store.
// Failures are logged and otherwise ignored.
func (f *Facade) Mirror() {
	f.mu.Lock()
	snapshot := storage.Backup{
		TimeData:    f.current.TimeData,
		History:     f.current.History,
		LastUpdated: time.Now().UTC(),
	}
	f.mu.Unlock()

	if snapshot.TimeData == nil {
		snapshot.TimeData = storage.TimeData{}
	}
	if snapshot.History == nil {
		snapshot.History = storage.History{}
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		f.logger.Error().Err(err).Msg("Failed to encode backup snapshot")
		return
	}

	if err := f.backup.Set(f.backupKey, data); err != nil {
		metrics.StoreErrors.WithLabelValues("backup", "set").Inc()
		f.logger.Warn().Err(err).Msg("Failed to mirror state to backup store")
		return
	}

	f.logger.Debug().Int("bytes", len(data)).Msg("Mirrored state to backup store")
}

// Close flushes queued writes and stops the writer goroutine.
func (f *Facade) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	close(f.stop)
	<-f.done
	return nil
}

// remember must be called with f.mu held. rec must not be mutated afterwards.
func (f *Facade) remember(rec storage.Record) {
	if rec.TimeData != nil {
		f.current.TimeData = rec.TimeData
	}
	if rec.History != nil {
		f.current.History = rec.History
	}
}

func (f *Facade) readBackup() (*storage.Backup, error) {
	data, err := f.backup.Get(f.backupKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			metrics.StoreErrors.WithLabelValues("backup", "get").Inc()
		}
		return nil, err
	}

	var backup storage.Backup
	if err := json.Unmarshal(data, &backup); err != nil {
		return nil, fmt.Errorf("decode backup: %w", err)
	}
	return &backup, nil
}

func (f *Facade) run() {
	defer close(f.done)

	for {
		select {
		case <-f.wake:
			f.flush()
		case <-f.stop:
			f.flush()
			return
		}
	}
}

func (f *Facade) flush() {
	f.mu.Lock()
	rec, waiters := f.pending, f.waiters
	f.pending, f.waiters = storage.Record{}, nil
	f.mu.Unlock()

	if rec.Empty() && len(waiters) == 0 {
		return
	}

	err := f.aggregate.Set(context.Background(), rec)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("aggregate", "set").Inc()
		f.logger.Error().
			Err(err).
			Interface("fields", rec.Fields()).
			Msg("Failed to write aggregate state, will retry with the next write")

		// Newer queued values take precedence over the failed ones.
		f.mu.Lock()
		f.pending = rec.Merge(f.pending)
		f.mu.Unlock()
	} else {
		f.Mirror()
	}

	for _, w := range waiters {
		w <- err
	}
}
