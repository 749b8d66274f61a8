// Package notify delivers alert messages to the user.
package notify

import (
	"github.com/rs/zerolog"
)

// Sink displays an alert. Delivery is best effort.
type Sink interface {
	Notify(title, message string) error
}

// LogSink writes alerts to the log.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink that logs alerts at warn level.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "notify").Logger()}
}

// Notify implements Sink.
func (s *LogSink) Notify(title, message string) error {
	s.logger.Warn().Str("title", title).Msg(message)
	return nil
}

// New returns the sink named by kind ("desktop" or "log"). When the desktop
// session bus is unavailable it falls back to the log sink.
func New(kind, appName string, logger zerolog.Logger) Sink {
	logSink := NewLogSink(logger)
	if kind != "desktop" {
		return logSink
	}

	desktop, err := DialDesktop(appName, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Desktop notifications unavailable, logging alerts instead")
		return logSink
	}
	return desktop
}

// Func adapts a function to Sink.
type Func func(title, message string) error

// Notify implements Sink.
func (f Func) Notify(title, message string) error {
	return f(title, message)
}
