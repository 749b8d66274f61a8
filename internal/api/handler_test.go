package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/goodtune/sitetime/internal/report"
	"github.com/goodtune/sitetime/internal/storage"
	"github.com/goodtune/sitetime/internal/storage/storagetest"
	"github.com/goodtune/sitetime/internal/usage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeTracker struct {
	mu   sync.Mutex
	urls []string
	snap usage.Snapshot
}

func (f *fakeTracker) OnContextChange(rawURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, rawURL)
}

func (f *fakeTracker) Snapshot() usage.Snapshot {
	return f.snap
}

func (f *fakeTracker) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

// helper: create fiber app and routes
func setupTestApp(t *testing.T) (*fiber.App, *fakeTracker, *storagetest.Aggregate) {
	t.Helper()

	tracker := &fakeTracker{snap: usage.Snapshot{Today: "2024-01-15"}}
	store := storagetest.NewAggregate()
	h := NewHandler(tracker, store, report.NewSettings(store), zerolog.Nop())

	app := fiber.New()
	h.Register(app)
	return app, tracker, store
}

// helper: send request
func doRequest(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			buf = bytes.NewReader([]byte(b))
		default:
			data, err := json.Marshal(body)
			require.NoError(t, err)
			buf = bytes.NewReader(data)
		}
	}

	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	return resp, respBody
}

func TestHealth(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, body := doRequest(t, app, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestContext(t *testing.T) {
	app, tracker, _ := setupTestApp(t)

	resp, _ := doRequest(t, app, http.MethodPost, "/v1/context", ContextRequest{URL: "https://a.com/x"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodPost, "/v1/context", map[string]any{})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Equal(t, []string{"https://a.com/x", ""}, tracker.received())
}

func TestContextInvalidJSON(t *testing.T) {
	app, tracker, _ := setupTestApp(t)

	resp, body := doRequest(t, app, http.MethodPost, "/v1/context", "{not json")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, string(body), "invalid_json")
	require.Empty(t, tracker.received())
}

func TestIdle(t *testing.T) {
	app, tracker, _ := setupTestApp(t)

	for _, state := range []string{"idle", "locked", "active"} {
		resp, _ := doRequest(t, app, http.MethodPost, "/v1/idle", IdleRequest{State: state})
		require.Equal(t, http.StatusAccepted, resp.StatusCode, state)
	}
	require.Equal(t, []string{"", ""}, tracker.received())

	resp, body := doRequest(t, app, http.MethodPost, "/v1/idle", IdleRequest{State: "asleep"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, string(body), "invalid_state")
}

func TestToday(t *testing.T) {
	app, tracker, store := setupTestApp(t)
	tracker.snap.Session = &usage.Session{Site: "b.com"}
	store.Put(storage.Record{TimeData: storage.TimeData{"b.com": 1000, "a.com": 65000}})

	resp, body := doRequest(t, app, http.MethodGet, "/v1/today", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var today TodayResponse
	require.NoError(t, json.Unmarshal(body, &today))
	require.Equal(t, "2024-01-15", today.Date)
	require.Equal(t, "b.com", today.Current)
	require.Equal(t, int64(66000), today.TotalMs)
	require.Equal(t, "1m", today.Total)
	require.Len(t, today.Sites, 2)
	require.Equal(t, "a.com", today.Sites[0].Site)
}

func TestHistory(t *testing.T) {
	app, _, store := setupTestApp(t)
	store.Put(storage.Record{History: storage.History{
		"2024-01-14": {"a.com": 1000},
		"2024-01-15": {"a.com": 120000},
	}})

	resp, body := doRequest(t, app, http.MethodGet, "/v1/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var history HistoryResponse
	require.NoError(t, json.Unmarshal(body, &history))
	require.Len(t, history.Days, 2)
	require.Equal(t, "2024-01-15", history.Days[0].Date)
	require.Equal(t, "2m", history.Days[0].Total)
}

func TestExport(t *testing.T) {
	app, _, store := setupTestApp(t)
	store.Put(storage.Record{History: storage.History{"2024-01-15": {"a.com": 65000}}})

	resp, body := doRequest(t, app, http.MethodGet, "/v1/export.csv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	require.Contains(t, resp.Header.Get("Content-Disposition"), "SiteTimeTracker.csv")
	require.Equal(t, "Date,Site,Time Spent\n2024-01-15,a.com,1m\n", string(body))
}

func TestGoal(t *testing.T) {
	app, _, store := setupTestApp(t)

	resp, body := doRequest(t, app, http.MethodPut, "/v1/goal", map[string]any{"minutes": 45})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"dailyLimitMs":2700000}`, string(body))
	require.Equal(t, int64(2700000), *store.Snapshot().DailyLimit)

	resp, _ = doRequest(t, app, http.MethodPut, "/v1/goal", map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodPut, "/v1/goal", map[string]any{"minutes": -5})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doRequest(t, app, http.MethodPut, "/v1/goal", map[string]any{"minutes": 200_000_000_000_000})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, string(body), "invalid_goal")
	require.Equal(t, int64(2700000), *store.Snapshot().DailyLimit, "rejected goal leaves the stored limit alone")
}

func TestAlerts(t *testing.T) {
	app, _, store := setupTestApp(t)

	resp, _ := doRequest(t, app, http.MethodPut, "/v1/alerts", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, *store.Snapshot().AlertsEnabled)

	resp, _ = doRequest(t, app, http.MethodPut, "/v1/alerts", map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStoreUnavailable(t *testing.T) {
	app, _, store := setupTestApp(t)
	store.FailGet(true)
	store.FailSet(true)

	for _, path := range []string{"/v1/today", "/v1/history", "/v1/export.csv"} {
		resp, body := doRequest(t, app, http.MethodGet, path, nil)
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
		require.Contains(t, string(body), "store_unavailable")
	}

	resp, _ := doRequest(t, app, http.MethodPut, "/v1/goal", map[string]any{"minutes": 10})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
