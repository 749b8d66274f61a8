package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/goodtune/sitetime/internal/storage"
	"github.com/goodtune/sitetime/internal/storage/storagetest"
	"github.com/goodtune/sitetime/internal/usage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testBackupKey = "siteTimeTrackerBackup"

func newTestFacade(t *testing.T) (*Facade, *storagetest.Aggregate, *storagetest.Backup) {
	t.Helper()

	agg := storagetest.NewAggregate()
	backup := storagetest.NewBackup()
	f := New(agg, backup, testBackupKey, zerolog.Nop())
	t.Cleanup(func() { _ = f.Close() })

	return f, agg, backup
}

func waitResult(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for write to settle")
		return nil
	}
}

func readBackup(t *testing.T, backup *storagetest.Backup) storage.Backup {
	t.Helper()
	data, err := backup.Get(testBackupKey)
	require.NoError(t, err)

	var b storage.Backup
	require.NoError(t, json.Unmarshal(data, &b))
	return b
}

func TestSaveWritesAndMirrors(t *testing.T) {
	f, agg, backup := newTestFacade(t)

	err := waitResult(t, f.Save(storage.Record{
		TimeData: storage.TimeData{"a.com": 65000},
		History:  storage.History{"2024-01-15": {"a.com": 65000}},
	}))
	require.NoError(t, err)

	require.Equal(t, int64(65000), agg.Snapshot().TimeData["a.com"])

	b := readBackup(t, backup)
	require.Equal(t, int64(65000), b.TimeData["a.com"])
	require.Equal(t, int64(65000), b.History["2024-01-15"]["a.com"])
	require.False(t, b.LastUpdated.IsZero())
}

func TestSaveDoesNotAliasCallerMaps(t *testing.T) {
	f, agg, _ := newTestFacade(t)

	td := storage.TimeData{"a.com": 1}
	done := f.Save(storage.Record{TimeData: td})
	td["a.com"] = 999

	require.NoError(t, waitResult(t, done))
	require.Equal(t, int64(1), agg.Snapshot().TimeData["a.com"])
}

func TestSaveCoalescesWhileWriteInFlight(t *testing.T) {
	f, agg, _ := newTestFacade(t)

	gate := make(chan struct{})
	agg.Gate(gate)

	first := f.Save(storage.Record{TimeData: storage.TimeData{"a.com": 1}})
	second := f.Save(storage.Record{TimeData: storage.TimeData{"a.com": 2}})
	third := f.Save(storage.Record{LastReset: storage.String("2024-01-15")})

	close(gate)

	require.NoError(t, waitResult(t, first))
	require.NoError(t, waitResult(t, second))
	require.NoError(t, waitResult(t, third))

	sets := agg.Sets()
	require.NotEmpty(t, sets)
	require.LessOrEqual(t, len(sets), 3)

	final := agg.Snapshot()
	require.Equal(t, int64(2), final.TimeData["a.com"], "last write wins")
	require.Equal(t, "2024-01-15", *final.LastReset)
}

func TestSaveFailureIsRetriedWithNextWrite(t *testing.T) {
	f, agg, backup := newTestFacade(t)

	agg.FailSet(true)
	err := waitResult(t, f.Save(storage.Record{LastReset: storage.String("2024-01-15")}))
	require.ErrorIs(t, err, storagetest.ErrInjected)
	require.Equal(t, 0, backup.Writes(), "no mirror after a failed aggregate write")

	agg.FailSet(false)
	err = waitResult(t, f.Save(storage.Record{TimeData: storage.TimeData{"a.com": 5}}))
	require.NoError(t, err)

	final := agg.Snapshot()
	require.NotNil(t, final.LastReset, "failed field rides along with the next write")
	require.Equal(t, "2024-01-15", *final.LastReset)
	require.Equal(t, int64(5), final.TimeData["a.com"])
}

func TestBackupFailureIsSwallowed(t *testing.T) {
	f, agg, backup := newTestFacade(t)

	backup.Fail(true)
	err := waitResult(t, f.Save(storage.Record{TimeData: storage.TimeData{"a.com": 5}}))
	require.NoError(t, err)
	require.Equal(t, int64(5), agg.Snapshot().TimeData["a.com"])
}

func TestMirrorUsesLatestHistory(t *testing.T) {
	f, _, backup := newTestFacade(t)

	require.NoError(t, waitResult(t, f.Save(storage.Record{
		TimeData: storage.TimeData{"a.com": 500},
		History:  storage.History{"2024-01-14": {"a.com": 500}},
	})))

	// A reset only carries timeData; the mirror keeps the known history.
	require.NoError(t, waitResult(t, f.Save(storage.Record{
		TimeData:  storage.TimeData{},
		LastReset: storage.String("2024-01-15"),
	})))

	b := readBackup(t, backup)
	require.Empty(t, b.TimeData)
	require.Equal(t, int64(500), b.History["2024-01-14"]["a.com"])
}

func TestRecoverFromBackupIntoEmptyAggregate(t *testing.T) {
	f, agg, backup := newTestFacade(t)

	snapshot := storage.Backup{
		TimeData: storage.TimeData{"a.com": 1000, "b.com": 2000},
		History:  storage.History{"2024-01-15": {"a.com": 1000, "b.com": 2000}},
	}
	data, err := json.Marshal(snapshot)
	require.NoError(t, err)
	require.NoError(t, backup.Set(testBackupKey, data))

	restored, err := f.Recover(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []storage.Field{storage.FieldTimeData, storage.FieldHistory}, restored)

	got := agg.Snapshot()
	require.Equal(t, snapshot.TimeData, got.TimeData)
	require.Equal(t, snapshot.History, got.History)
}

func TestRecoverAggregateWinsWhenNonEmpty(t *testing.T) {
	f, agg, backup := newTestFacade(t)

	agg.Put(storage.Record{
		TimeData: storage.TimeData{"a.com": 10},
		History:  storage.History{},
	})

	data, err := json.Marshal(storage.Backup{
		TimeData: storage.TimeData{"stale.com": 99999},
		History:  storage.History{"2024-01-14": {"stale.com": 99999}},
	})
	require.NoError(t, err)
	require.NoError(t, backup.Set(testBackupKey, data))

	restored, err := f.Recover(context.Background())
	require.NoError(t, err)
	require.Equal(t, []storage.Field{storage.FieldHistory}, restored)

	got := agg.Snapshot()
	require.Equal(t, storage.TimeData{"a.com": 10}, got.TimeData, "non-empty aggregate timeData wins")
	require.Equal(t, int64(99999), got.History["2024-01-14"]["stale.com"], "empty history is repaired independently")
}

func TestRecoverWithoutBackupLeavesAggregateAlone(t *testing.T) {
	f, agg, _ := newTestFacade(t)

	restored, err := f.Recover(context.Background())
	require.NoError(t, err)
	require.Empty(t, restored)
	require.Empty(t, agg.Sets())
}

func TestRecoverAggregateUnavailable(t *testing.T) {
	f, agg, _ := newTestFacade(t)

	agg.FailGet(true)
	_, err := f.Recover(context.Background())
	require.ErrorIs(t, err, storagetest.ErrInjected)
}

func seedBackup(t *testing.T, backup *storagetest.Backup, b storage.Backup) {
	t.Helper()
	data, err := json.Marshal(b)
	require.NoError(t, err)
	require.NoError(t, backup.Set(testBackupKey, data))
}

func TestLoadOrBackupPrefersAggregate(t *testing.T) {
	f, agg, backup := newTestFacade(t)
	agg.Put(storage.Record{TimeData: storage.TimeData{"a.com": 10}})
	seedBackup(t, backup, storage.Backup{TimeData: storage.TimeData{"stale.com": 1}})

	rec, fromBackup, err := f.LoadOrBackup(context.Background())
	require.NoError(t, err)
	require.False(t, fromBackup)
	require.Equal(t, storage.TimeData{"a.com": 10}, rec.TimeData)
}

func TestLoadOrBackupBothUnavailable(t *testing.T) {
	f, agg, _ := newTestFacade(t)
	agg.FailGet(true)

	_, fromBackup, err := f.LoadOrBackup(context.Background())
	require.ErrorIs(t, err, storagetest.ErrInjected)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.False(t, fromBackup)
}

func TestAggregateOutageAtStartupKeepsBackedUpTotals(t *testing.T) {
	f, agg, backup := newTestFacade(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.Local)

	seedBackup(t, backup, storage.Backup{
		TimeData: storage.TimeData{"a.com": 500000},
		History: storage.History{
			"2024-01-14": {"a.com": 300000},
			"2024-01-15": {"a.com": 500000},
		},
		LastUpdated: now.Add(-time.Hour).UTC(),
	})
	agg.FailGet(true)

	_, err := f.Recover(ctx)
	require.Error(t, err)

	rec, fromBackup, err := f.LoadOrBackup(ctx)
	require.NoError(t, err)
	require.True(t, fromBackup)
	require.Equal(t, "2024-01-15", *rec.LastReset)

	clock := &usage.TestClock{CurrentTime: now}
	tracker, err := usage.NewTracker(f, clock, usage.Config{}, zerolog.Nop())
	require.NoError(t, err)
	tracker.Restore(rec)

	// The aggregate store comes back before the first write.
	agg.FailGet(false)
	tracker.OnContextChange("https://b.com/")
	clock.Advance(time.Second)
	tracker.OnContextChange("")
	require.NoError(t, f.Close())

	got := agg.Snapshot()
	require.Equal(t, storage.TimeData{"a.com": 500000, "b.com": 1000}, got.TimeData)
	require.Equal(t, int64(300000), got.History["2024-01-14"]["a.com"])
	require.Equal(t, int64(1000), got.History["2024-01-15"]["b.com"])

	b := readBackup(t, backup)
	require.Equal(t, got.TimeData, b.TimeData)
	require.Equal(t, int64(300000), b.History["2024-01-14"]["a.com"])
}

func TestCloseFlushesAndRejectsLaterWrites(t *testing.T) {
	agg := storagetest.NewAggregate()
	f := New(agg, storagetest.NewBackup(), testBackupKey, zerolog.Nop())

	pending := f.Save(storage.Record{TimeData: storage.TimeData{"a.com": 7}})
	require.NoError(t, f.Close())
	require.NoError(t, waitResult(t, pending))
	require.Equal(t, int64(7), agg.Snapshot().TimeData["a.com"])

	require.ErrorIs(t, waitResult(t, f.Save(storage.Record{})), ErrClosed)
	require.NoError(t, f.Close(), "second close is a no-op")
}
