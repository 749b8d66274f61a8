package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Tracking metrics
	// Per-site totals live in the aggregate store; a site label would grow
	// one series per hostname ever visited.
	TrackedSeconds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sitetime_tracked_seconds_total",
			Help: "Total active browsing seconds attributed to sites",
		},
	)

	ContextChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitetime_context_changes_total",
			Help: "Foreground context changes received",
		},
		[]string{"kind"},
	)

	DailyResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sitetime_daily_resets_total",
			Help: "Daily totals resets performed",
		},
	)

	HistoryDays = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitetime_history_days",
			Help: "Number of dates currently retained in history",
		},
	)

	// Persistence metrics
	StoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitetime_store_errors_total",
			Help: "Failed persistence operations",
		},
		[]string{"store", "op"},
	)

	// Alert metrics
	AlertsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitetime_alerts_total",
			Help: "Daily limit alerts emitted",
		},
		[]string{"source"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		TrackedSeconds,
		ContextChanges,
		DailyResets,
		HistoryDays,
		StoreErrors,
		AlertsEmitted,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
