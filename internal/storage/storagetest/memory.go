// Package storagetest provides in-memory stores with failure injection for
// tests.
package storagetest

import (
	"context"
	"errors"
	"sync"

	"github.com/goodtune/sitetime/internal/storage"
)

// ErrInjected is returned by stores configured to fail.
var ErrInjected = errors.New("storagetest: injected failure")

// Aggregate is an in-memory storage.AggregateStore.
type Aggregate struct {
	mu      sync.Mutex
	rec     storage.Record
	sets    []storage.Record
	failGet bool
	failSet bool
	gate    chan struct{}
}

// NewAggregate returns an empty aggregate store.
func NewAggregate() *Aggregate {
	return &Aggregate{}
}

// Get implements storage.AggregateStore.
func (a *Aggregate) Get(ctx context.Context, fields ...storage.Field) (storage.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.failGet {
		return storage.Record{}, ErrInjected
	}
	if len(fields) == 0 {
		fields = storage.AllFields
	}

	src := a.rec.Clone()
	var out storage.Record
	for _, f := range fields {
		switch f {
		case storage.FieldTimeData:
			out.TimeData = src.TimeData
		case storage.FieldHistory:
			out.History = src.History
		case storage.FieldLastReset:
			out.LastReset = src.LastReset
		case storage.FieldDailyLimit:
			out.DailyLimit = src.DailyLimit
		case storage.FieldAlertsEnabled:
			out.AlertsEnabled = src.AlertsEnabled
		}
	}
	return out, nil
}

// Set implements storage.AggregateStore. When a gate is installed, Set waits
// for a value on it before applying the write.
func (a *Aggregate) Set(ctx context.Context, rec storage.Record) error {
	a.mu.Lock()
	gate := a.gate
	a.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.failSet {
		return ErrInjected
	}
	rec = rec.Clone()
	a.sets = append(a.sets, rec)
	a.rec = a.rec.Merge(rec)
	return nil
}

// Put seeds the store without recording a Set call.
func (a *Aggregate) Put(rec storage.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rec = a.rec.Merge(rec.Clone())
}

// Snapshot returns a copy of the stored state.
func (a *Aggregate) Snapshot() storage.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rec.Clone()
}

// Sets returns copies of every successful Set, in order.
func (a *Aggregate) Sets() []storage.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]storage.Record, len(a.sets))
	for i, rec := range a.sets {
		out[i] = rec.Clone()
	}
	return out
}

// FailGet makes Get return ErrInjected.
func (a *Aggregate) FailGet(fail bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failGet = fail
}

// FailSet makes Set return ErrInjected.
func (a *Aggregate) FailSet(fail bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failSet = fail
}

// Gate installs (or with nil, removes) a channel every Set must receive from
// before it proceeds.
func (a *Aggregate) Gate(gate chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gate = gate
}

// Backup is an in-memory storage.BackupStore.
type Backup struct {
	mu     sync.Mutex
	values map[string][]byte
	writes int
	fail   bool
}

// NewBackup returns an empty backup store.
func NewBackup() *Backup {
	return &Backup{values: make(map[string][]byte)}
}

// Get implements storage.BackupStore.
func (b *Backup) Get(key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return nil, ErrInjected
	}
	v, ok := b.values[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set implements storage.BackupStore.
func (b *Backup) Set(key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return ErrInjected
	}
	b.values[key] = append([]byte(nil), value...)
	b.writes++
	return nil
}

// Writes returns the number of successful Set calls.
func (b *Backup) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}

// Fail makes Get and Set return ErrInjected.
func (b *Backup) Fail(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = fail
}
