package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/sitetime/internal/config"
	"github.com/goodtune/sitetime/internal/storage"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so Port stays 0
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 1,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
		KeyPrefix:    "test",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store, mr
}

func TestAggregateStore_EmptyOnColdStart(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	rec, err := store.Aggregate().Get(context.Background())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !rec.Empty() {
		t.Errorf("Expected empty record, got fields %v", rec.Fields())
	}
}

func TestAggregateStore_SetAndGet(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	agg := store.Aggregate()

	rec := storage.Record{
		TimeData: storage.TimeData{"a.com": 65000, "b.com": 1000},
		History: storage.History{
			"2024-01-15": {"a.com": 65000, "b.com": 1000},
		},
		LastReset:     storage.String("2024-01-15"),
		DailyLimit:    storage.Int64(60000),
		AlertsEnabled: storage.Bool(false),
	}

	if err := agg.Set(ctx, rec); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := agg.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got.TimeData["a.com"] != 65000 {
		t.Errorf("Expected a.com 65000, got %d", got.TimeData["a.com"])
	}
	if got.History["2024-01-15"]["b.com"] != 1000 {
		t.Errorf("Expected history b.com 1000, got %d", got.History["2024-01-15"]["b.com"])
	}
	if got.LastReset == nil || *got.LastReset != "2024-01-15" {
		t.Errorf("Expected lastReset 2024-01-15, got %v", got.LastReset)
	}
	if got.DailyLimitOr(0) != 60000 {
		t.Errorf("Expected dailyLimit 60000, got %d", got.DailyLimitOr(0))
	}
	if got.AlertsEnabledOr(true) {
		t.Error("Expected alertsEnabled false")
	}

	if !mr.Exists("test:updatedAt") {
		t.Error("Expected updatedAt key to be written")
	}
}

func TestAggregateStore_PartialSetLeavesOtherFields(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	agg := store.Aggregate()

	if err := agg.Set(ctx, storage.Record{
		TimeData: storage.TimeData{"a.com": 500},
		History:  storage.History{"2024-01-14": {"a.com": 500}},
	}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// A daily reset writes lastReset and an empty timeData only.
	if err := agg.Set(ctx, storage.Record{
		TimeData:  storage.TimeData{},
		LastReset: storage.String("2024-01-15"),
	}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := agg.Get(ctx, storage.FieldTimeData, storage.FieldHistory, storage.FieldLastReset)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got.TimeData == nil || len(got.TimeData) != 0 {
		t.Errorf("Expected present, empty timeData, got %v", got.TimeData)
	}
	if len(got.History) != 1 {
		t.Errorf("Expected history to survive, got %v", got.History)
	}
	if got.DailyLimit != nil {
		t.Error("Expected dailyLimit to stay absent when not requested")
	}
}

func TestAggregateStore_CorruptValue(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	if err := mr.Set("test:timeData", "{not json"); err != nil {
		t.Fatalf("miniredis set: %v", err)
	}

	if _, err := store.Aggregate().Get(context.Background(), storage.FieldTimeData); err == nil {
		t.Error("Expected decode error for corrupt timeData")
	}
}

func TestAggregateStore_ServerError(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	mr.SetError("ERR injected failure")

	if err := store.Aggregate().Set(context.Background(), storage.Record{TimeData: storage.TimeData{"a.com": 1}}); err == nil {
		t.Error("Expected error when the server rejects commands")
	}
}

func TestClientOptions(t *testing.T) {
	opts, err := clientOptions(config.RedisConfig{
		Host:        "cache.internal",
		Port:        6380,
		DB:          2,
		DialTimeout: "2s",
	})
	if err != nil {
		t.Fatalf("clientOptions failed: %v", err)
	}
	if opts.Addr != "cache.internal:6380" {
		t.Errorf("Expected addr cache.internal:6380, got %s", opts.Addr)
	}
	if opts.DialTimeout.String() != "2s" {
		t.Errorf("Expected dial timeout 2s, got %s", opts.DialTimeout)
	}
	if opts.ReadTimeout != 0 {
		t.Errorf("Unset read timeout should keep the client default, got %s", opts.ReadTimeout)
	}

	if _, err := clientOptions(config.RedisConfig{Host: "h", WriteTimeout: "soon"}); err == nil {
		t.Error("Expected error for invalid write_timeout")
	}
}

func TestOpenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := Open(config.RedisConfig{Host: addr, DialTimeout: "200ms"}); err == nil {
		t.Fatal("Expected error connecting to a stopped server")
	}
}
