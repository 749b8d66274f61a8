package usage

import (
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/sitetime/internal/metrics"
	"github.com/goodtune/sitetime/internal/storage"
	"github.com/rs/zerolog"
)

// Tracker attributes foreground time to sites and maintains the daily totals
// and the retained history. All state is guarded by mu; persistence writes
// are issued after the in-memory state has been updated and are not awaited.
type Tracker struct {
	persister Persister
	resolver  *SiteResolver
	clock     Clock
	retention int
	logger    zerolog.Logger

	mu    sync.Mutex
	state state
}

type state struct {
	currentSite string // empty when no session is open
	startTime   time.Time
	timeData    storage.TimeData
	history     storage.History
	lastReset   string
}

// NewTracker creates a new tracker with empty state. Call Restore with the
// persisted record before feeding events.
func NewTracker(persister Persister, clock Clock, config Config, logger zerolog.Logger) (*Tracker, error) {
	if config.RetentionDays == 0 {
		config.RetentionDays = DefaultRetentionDays
	}
	if clock == nil {
		clock = RealClock{}
	}

	resolver, err := NewSiteResolver(config.HostnameCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create site resolver: %w", err)
	}

	return &Tracker{
		persister: persister,
		resolver:  resolver,
		clock:     clock,
		retention: config.RetentionDays,
		logger:    logger.With().Str("component", "tracker").Logger(),
		state: state{
			timeData: storage.TimeData{},
			history:  storage.History{},
		},
	}, nil
}

// Restore replaces the aggregate state with rec, typically the result of
// recovery at startup. An absent lastReset is initialised to today without
// clearing the totals. Any open session is left untouched.
func (t *Tracker) Restore(rec storage.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec = rec.Clone()
	t.state.timeData = rec.TimeData
	if t.state.timeData == nil {
		t.state.timeData = storage.TimeData{}
	}
	t.state.history = rec.History
	if t.state.history == nil {
		t.state.history = storage.History{}
	}

	if rec.LastReset != nil {
		t.state.lastReset = *rec.LastReset
	} else {
		t.state.lastReset = t.today()
		t.persister.Save(storage.Record{LastReset: storage.String(t.state.lastReset)})
	}
	metrics.HistoryDays.Set(float64(len(t.state.history)))

	t.logger.Info().
		Str("last_reset", t.state.lastReset).
		Int("sites", len(t.state.timeData)).
		Int("history_days", len(t.state.history)).
		Msg("Restored tracker state")
}

// OnContextChange closes the open session, if any, and opens a new one for
// the site rawURL resolves to. An empty or unresolvable URL (idle, locked,
// no tab) leaves no session open.
func (t *Tracker) OnContextChange(rawURL string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.closeSession(now)

	site, ok := t.resolver.Resolve(rawURL)
	if !ok {
		metrics.ContextChanges.WithLabelValues("none").Inc()
		t.state.currentSite = ""
		t.state.startTime = time.Time{}
		return
	}

	metrics.ContextChanges.WithLabelValues("site").Inc()
	t.state.currentSite = site
	t.state.startTime = now

	t.logger.Debug().Str("site", site).Msg("Session opened")
}

// Checkpoint applies the open session's elapsed time without closing it and
// runs the date checks even when no session is open.
func (t *Tracker) Checkpoint() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.closeSession(now)
	if t.state.currentSite != "" {
		t.state.startTime = now
	}
}

// ApplyDelta adds elapsed to site's daily total. An empty site only runs
// the daily reset and history checks.
func (t *Tracker) ApplyDelta(site string, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.applyDelta(t.today(), site, elapsed)
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		Today:     t.today(),
		TimeData:  t.state.timeData.Clone(),
		History:   t.state.history.Clone(),
		LastReset: t.state.lastReset,
	}
	if t.state.currentSite != "" {
		snap.Session = &Session{Site: t.state.currentSite, StartTime: t.state.startTime}
	}
	return snap
}

// closeSession hands the open session's elapsed time, or a zero delta when
// none is open, to applyDelta. Must be called with t.mu held.
func (t *Tracker) closeSession(now time.Time) {
	today := now.Format(storage.DateLayout)
	if t.state.currentSite == "" {
		t.applyDelta(today, "", 0)
		return
	}

	elapsed := now.Sub(t.state.startTime)
	if elapsed < 0 {
		t.logger.Warn().
			Str("site", t.state.currentSite).
			Dur("elapsed", elapsed).
			Msg("Clock moved backwards, discarding elapsed time")
		elapsed = 0
	}
	t.applyDelta(today, t.state.currentSite, elapsed)
}

// applyDelta must be called with t.mu held.
func (t *Tracker) applyDelta(today, site string, elapsed time.Duration) {
	t.resetIfNewDay(today)
	t.ensureToday(today)

	if site == "" {
		return
	}
	if elapsed < 0 {
		elapsed = 0
	}

	t.state.timeData[site] += elapsed.Milliseconds()
	t.state.history[today][site] = t.state.timeData[site]
	metrics.TrackedSeconds.Add(elapsed.Seconds())

	t.logger.Debug().
		Str("site", site).
		Str("date", today).
		Dur("elapsed", elapsed).
		Int64("total_ms", t.state.timeData[site]).
		Msg("Applied delta")

	t.persister.Save(storage.Record{
		TimeData: t.state.timeData.Clone(),
		History:  t.state.history.Clone(),
	})
}

func (t *Tracker) today() string {
	return t.clock.Now().Format(storage.DateLayout)
}
