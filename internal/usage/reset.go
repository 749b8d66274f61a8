package usage

import (
	"sort"

	"github.com/goodtune/sitetime/internal/metrics"
	"github.com/goodtune/sitetime/internal/storage"
)

// resetIfNewDay clears the daily totals when lastReset is not today.
// Must be called with t.mu held.
func (t *Tracker) resetIfNewDay(today string) {
	if t.state.lastReset == today {
		return
	}

	t.logger.Info().
		Str("last_reset", t.state.lastReset).
		Str("date", today).
		Int64("discarded_ms", t.state.timeData.Total()).
		Msg("Resetting daily totals")

	t.state.timeData = storage.TimeData{}
	t.state.lastReset = today
	metrics.DailyResets.Inc()

	t.persister.Save(storage.Record{
		LastReset: storage.String(today),
		TimeData:  storage.TimeData{},
	})
}

// ensureToday creates the history entry for today, pruning old dates when it
// is new. Must be called with t.mu held.
func (t *Tracker) ensureToday(today string) {
	if _, ok := t.state.history[today]; ok {
		return
	}

	t.state.history[today] = storage.TimeData{}
	removed := pruneHistory(t.state.history, t.retention)
	if len(removed) > 0 {
		t.logger.Debug().Strs("dates", removed).Msg("Pruned history")
	}
	metrics.HistoryDays.Set(float64(len(t.state.history)))

	t.persister.Save(storage.Record{History: t.state.history.Clone()})
}

// pruneHistory deletes the oldest dates until at most keep remain and returns
// the deleted dates. ISO date strings sort chronologically.
func pruneHistory(history storage.History, keep int) []string {
	if keep < 1 || len(history) <= keep {
		return nil
	}

	dates := make([]string, 0, len(history))
	for date := range history {
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	removed := dates[keep:]
	for _, date := range removed {
		delete(history, date)
	}
	return removed
}
