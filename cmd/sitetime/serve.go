package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/sitetime/internal/alert"
	"github.com/goodtune/sitetime/internal/api"
	"github.com/goodtune/sitetime/internal/config"
	"github.com/goodtune/sitetime/internal/metrics"
	"github.com/goodtune/sitetime/internal/notify"
	"github.com/goodtune/sitetime/internal/persistence"
	"github.com/goodtune/sitetime/internal/report"
	"github.com/goodtune/sitetime/internal/schedule"
	"github.com/goodtune/sitetime/internal/storage"
	"github.com/goodtune/sitetime/internal/systemd"
	"github.com/goodtune/sitetime/internal/usage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// checkLimitSchedule names the coarse alert check.
const checkLimitSchedule = "checkLimit"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sitetime tracker",
	Long:  `Start the tracker with its context ingest API, alert timers and metrics endpoint.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	var logger zerolog.Logger

	// Load configuration, re-applying the log level when the file changes
	cfg, err := config.Watch(configPath,
		func(updated *config.Config) {
			zerolog.SetGlobalLevel(parseLevel(updated.Logging.Level))
			logger.Info().Str("level", updated.Logging.Level).Msg("Configuration reloaded")
		},
		func(err error) {
			logger.Warn().Err(err).Msg("Ignoring invalid configuration change")
		},
	)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger = setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting sitetime")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	st, err := openStores(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("backup", cfg.Storage.Backup.Path).
		Msg("Storage initialized")

	aggregate := st.aggregate.Aggregate()
	facade := persistence.New(aggregate, st.backup.Backup(), cfg.Storage.Backup.Key, logger)
	defer func() {
		if err := facade.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to flush pending writes")
		}
	}()

	// Repair the aggregate store from the backup, then load it
	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	if _, err := facade.Recover(startCtx); err != nil {
		logger.Warn().Err(err).Msg("Startup recovery failed, continuing with aggregate store contents")
	}
	state, fromBackup, err := facade.LoadOrBackup(startCtx)
	cancelStart()
	if err != nil {
		logger.Warn().Err(err).Msg("Aggregate and backup stores unavailable, starting from empty state")
		state = storage.Record{}
	} else if fromBackup {
		logger.Warn().Msg("Starting from backup state until the aggregate store is reachable")
	}

	// Initialize Tracker
	tracker, err := usage.NewTracker(facade, usage.RealClock{}, usage.Config{
		RetentionDays:     cfg.Tracking.RetentionDays,
		HostnameCacheSize: cfg.Tracking.HostnameCacheSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracker: %w", err)
	}
	tracker.Restore(state)
	tracker.Checkpoint()

	logger.Info().Msg("Tracker initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := quartz.NewReal()

	if interval := config.ParseDuration(cfg.Tracking.CheckpointInterval, 0); interval > 0 {
		clock.TickerFunc(ctx, interval, func() error {
			tracker.Checkpoint()
			return nil
		}, "checkpoint")
	}

	// Initialize alerting
	sink := notify.New(cfg.Alerts.Notifier, cfg.Alerts.AppName, logger)
	if c, ok := sink.(io.Closer); ok {
		defer c.Close()
	}

	evaluator := alert.NewEvaluator(aggregate, sink, clock, alert.Config{
		Interval:          config.ParseDuration(cfg.Alerts.Interval, alert.DefaultInterval),
		DefaultDailyLimit: config.ParseDuration(cfg.Alerts.DefaultDailyLimit, time.Hour),
		DefaultEnabled:    cfg.Alerts.DefaultEnabled,
	}, logger)
	go func() {
		if err := evaluator.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("Alert evaluator stopped")
		}
	}()

	scheduler := schedule.New(logger)
	if err := scheduler.Every(checkLimitSchedule, cfg.Alerts.ScheduleMinutes, func() {
		evaluator.Evaluate(ctx, alert.SourceSchedule)
	}); err != nil {
		return fmt.Errorf("failed to schedule limit check: %w", err)
	}
	scheduler.Start()

	// Initialize API Server
	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
	handler := api.NewHandler(tracker, aggregate, report.NewSettings(aggregate), logger)
	apiServer := api.NewServer(apiAddr, handler, logger)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API Server: %w", err)
	}

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 || sdListeners.Metrics != nil {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, logger)
		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}
	}

	logger.Info().
		Str("api", apiAddr).
		Int("metrics_port", cfg.Server.MetricsPort).
		Msg("sitetime startup complete")

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}
	if interval := systemd.WatchdogInterval(); interval > 0 {
		clock.TickerFunc(ctx, interval, func() error {
			if err := systemd.NotifyWatchdog(); err != nil {
				logger.Warn().Err(err).Msg("Failed to send systemd watchdog notification")
			}
			return nil
		}, "watchdog")
	}

	// Wait for signals (shutdown or checkpoint)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			logger.Info().Msg("SIGHUP received, checkpointing open session")
			tracker.Checkpoint()
			continue
		}
		logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		break
	}
	signal.Stop(sigChan)

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping API Server")
	}
	cancel()
	scheduler.Stop(shutdownCtx)

	// Close the open session so its time is persisted
	tracker.OnContextChange("")

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	logger.Info().Msg("sitetime stopped")
	return nil
}
