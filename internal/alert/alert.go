// Package alert compares today's browsing total with the daily limit and
// raises alerts. It reads from the aggregate store, not from tracker memory.
package alert

import (
	"context"
	"errors"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/sitetime/internal/metrics"
	"github.com/goodtune/sitetime/internal/notify"
	"github.com/goodtune/sitetime/internal/storage"
	"github.com/goodtune/sitetime/internal/usage"
	"github.com/rs/zerolog"
)

// Source identifies which trigger ran an evaluation.
type Source string

const (
	// SourceTimer is the fine-grained in-process ticker.
	SourceTimer Source = "timer"
	// SourceSchedule is the coarse scheduled check.
	SourceSchedule Source = "schedule"
)

// TickerTag tags the evaluator's ticker on the clock.
const TickerTag = "alert"

// DefaultInterval is the period of the in-process ticker.
const DefaultInterval = 30 * time.Second

type message struct {
	title  string
	prefix string
}

var messages = map[Source]message{
	SourceTimer: {
		title:  "You've exceeded your daily browsing limit!",
		prefix: "Total time spent today: ",
	},
	SourceSchedule: {
		title:  "Daily Limit Exceeded",
		prefix: "Total browsing time today: ",
	},
}

// Config holds evaluator configuration
type Config struct {
	Interval time.Duration
	// DefaultDailyLimit applies until a goal is stored. Zero alerts on any
	// tracked time; a negative value selects storage.DefaultDailyLimit.
	DefaultDailyLimit time.Duration
	DefaultEnabled    bool
}

// Evaluator checks the daily total against the limit.
type Evaluator struct {
	store    storage.AggregateStore
	sink     notify.Sink
	clock    quartz.Clock
	interval time.Duration
	limit    int64
	enabled  bool
	logger   zerolog.Logger
}

// NewEvaluator creates an evaluator. A nil clock uses the real clock.
func NewEvaluator(store storage.AggregateStore, sink notify.Sink, clock quartz.Clock, config Config, logger zerolog.Logger) *Evaluator {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	limit := config.DefaultDailyLimit.Milliseconds()
	if config.DefaultDailyLimit < 0 {
		limit = storage.DefaultDailyLimit
	}

	return &Evaluator{
		store:    store,
		sink:     sink,
		clock:    clock,
		interval: config.Interval,
		limit:    limit,
		enabled:  config.DefaultEnabled,
		logger:   logger.With().Str("component", "alert").Logger(),
	}
}

// Run evaluates on every tick until ctx is canceled.
func (e *Evaluator) Run(ctx context.Context) error {
	e.logger.Info().Dur("interval", e.interval).Msg("Starting alert evaluator")

	w := e.clock.TickerFunc(ctx, e.interval, func() error {
		e.Evaluate(ctx, SourceTimer)
		return nil
	}, TickerTag)

	err := w.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Evaluate runs one check and reports whether an alert was emitted. Store
// failures skip the cycle.
func (e *Evaluator) Evaluate(ctx context.Context, source Source) bool {
	rec, err := e.store.Get(ctx, storage.FieldTimeData, storage.FieldDailyLimit, storage.FieldAlertsEnabled)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("aggregate", "get").Inc()
		e.logger.Warn().Err(err).Str("source", string(source)).Msg("Skipping alert check, state unreadable")
		return false
	}

	if !rec.AlertsEnabledOr(e.enabled) {
		return false
	}

	total := rec.TimeData.Total()
	limit := rec.DailyLimitOr(e.limit)
	if total <= limit {
		return false
	}

	msg := messages[source]
	text := msg.prefix + usage.FormatDuration(total)
	if err := e.sink.Notify(msg.title, text); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to deliver alert")
	}
	metrics.AlertsEmitted.WithLabelValues(string(source)).Inc()

	e.logger.Info().
		Str("source", string(source)).
		Int64("total_ms", total).
		Int64("limit_ms", limit).
		Msg("Daily limit exceeded")
	return true
}
