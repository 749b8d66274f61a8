// Package api exposes the context event ingest and the reporting surface
// over HTTP.
package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/goodtune/sitetime/internal/report"
	"github.com/goodtune/sitetime/internal/storage"
	"github.com/goodtune/sitetime/internal/usage"
	"github.com/rs/zerolog"
)

// Tracker receives context changes.
type Tracker interface {
	OnContextChange(rawURL string)
	Snapshot() usage.Snapshot
}

// Settings writes user-facing configuration.
type Settings interface {
	SetGoal(ctx context.Context, minutes int64) (int64, error)
	SetAlerts(ctx context.Context, enabled bool) error
}

type Handler struct {
	tracker  Tracker
	store    storage.AggregateStore
	settings Settings
	logger   zerolog.Logger
}

func NewHandler(tracker Tracker, store storage.AggregateStore, settings Settings, logger zerolog.Logger) *Handler {
	return &Handler{
		tracker:  tracker,
		store:    store,
		settings: settings,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Register mounts the routes on app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/healthz", h.Health)

	v1 := app.Group("/v1")
	v1.Post("/context", h.Context)
	v1.Post("/idle", h.Idle)
	v1.Get("/today", h.Today)
	v1.Get("/history", h.History)
	v1.Get("/export.csv", h.Export)
	v1.Put("/goal", h.Goal)
	v1.Put("/alerts", h.Alerts)
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{Status: "ok"})
}

// Context handles tab activation and navigation.
func (h *Handler) Context(c *fiber.Ctx) error {
	var req ContextRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_json", err)
	}

	h.tracker.OnContextChange(req.URL)
	return c.Status(http.StatusAccepted).JSON(StatusResponse{Status: "accepted"})
}

// Idle handles idle state transitions. idle and locked end the open session;
// active waits for the next context event.
func (h *Handler) Idle(c *fiber.Ctx) error {
	var req IdleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_json", err)
	}

	switch req.State {
	case "idle", "locked":
		h.tracker.OnContextChange("")
	case "active":
	default:
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_state",
			Message: "state must be one of active, idle, locked",
		})
	}
	return c.Status(http.StatusAccepted).JSON(StatusResponse{Status: "accepted"})
}

// Today returns the persisted daily totals, largest first.
func (h *Handler) Today(c *fiber.Ctx) error {
	rec, err := h.store.Get(c.UserContext(), storage.FieldTimeData)
	if err != nil {
		return h.storeError(c, err)
	}

	snap := h.tracker.Snapshot()
	resp := TodayResponse{
		Date:    snap.Today,
		Sites:   report.DailyRows(rec.TimeData),
		TotalMs: rec.TimeData.Total(),
		Total:   usage.FormatDuration(rec.TimeData.Total()),
	}
	if snap.Session != nil {
		resp.Current = snap.Session.Site
	}
	return c.JSON(resp)
}

// History returns the retained dates, busiest first.
func (h *Handler) History(c *fiber.Ctx) error {
	rec, err := h.store.Get(c.UserContext(), storage.FieldHistory)
	if err != nil {
		return h.storeError(c, err)
	}
	return c.JSON(HistoryResponse{Days: report.HistoryDays(rec.History)})
}

// Export streams the history as CSV.
func (h *Handler) Export(c *fiber.Ctx) error {
	rec, err := h.store.Get(c.UserContext(), storage.FieldHistory)
	if err != nil {
		return h.storeError(c, err)
	}

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, rec.History); err != nil {
		return h.storeError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="SiteTimeTracker.csv"`)
	return c.Send(buf.Bytes())
}

// Goal sets the daily limit from a number of minutes.
func (h *Handler) Goal(c *fiber.Ctx) error {
	var req GoalRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_json", err)
	}
	if req.Minutes == nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Error: "minutes_required"})
	}

	limit, err := h.settings.SetGoal(c.UserContext(), *req.Minutes)
	if errors.Is(err, report.ErrInvalidGoal) {
		return badRequest(c, "invalid_goal", err)
	}
	if err != nil {
		return h.storeError(c, err)
	}

	h.logger.Info().Int64("minutes", *req.Minutes).Msg("Daily goal updated")
	return c.JSON(GoalResponse{DailyLimitMs: limit})
}

// Alerts toggles limit alerts.
func (h *Handler) Alerts(c *fiber.Ctx) error {
	var req AlertsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_json", err)
	}
	if req.Enabled == nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Error: "enabled_required"})
	}

	if err := h.settings.SetAlerts(c.UserContext(), *req.Enabled); err != nil {
		return h.storeError(c, err)
	}

	h.logger.Info().Bool("enabled", *req.Enabled).Msg("Alerts toggled")
	return c.JSON(StatusResponse{Status: "ok"})
}

func badRequest(c *fiber.Ctx, code string, err error) error {
	return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
		Error:   code,
		Message: err.Error(),
	})
}

func (h *Handler) storeError(c *fiber.Ctx, err error) error {
	h.logger.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	return c.Status(http.StatusServiceUnavailable).JSON(ErrorResponse{
		Error: "store_unavailable",
	})
}
