package api

import "github.com/goodtune/sitetime/internal/report"

// ContextRequest reports the foreground URL. An empty URL means no context.
type ContextRequest struct {
	URL string `json:"url"`
}

// IdleRequest reports an idle state transition: active, idle or locked.
type IdleRequest struct {
	State string `json:"state"`
}

// GoalRequest sets the daily goal in minutes.
type GoalRequest struct {
	Minutes *int64 `json:"minutes"`
}

// AlertsRequest toggles limit alerts.
type AlertsRequest struct {
	Enabled *bool `json:"enabled"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type TodayResponse struct {
	Date    string       `json:"date"`
	Sites   []report.Row `json:"sites"`
	TotalMs int64        `json:"totalMs"`
	Total   string       `json:"total"`
	Current string       `json:"current,omitempty"`
}

type HistoryResponse struct {
	Days []report.Day `json:"days"`
}

type GoalResponse struct {
	DailyLimitMs int64 `json:"dailyLimitMs"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
