// Package report renders the persisted totals for people: sorted tables, CSV
// export and a minutes-per-site bar chart. It also writes the user-facing
// settings (daily goal, alert toggle).
package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/sitetime/internal/storage"
	"github.com/goodtune/sitetime/internal/usage"
	"github.com/jedib0t/go-pretty/v6/table"
)

// CSVHeader is the first row of every export.
var CSVHeader = []string{"Date", "Site", "Time Spent"}

// Row is one site's time.
type Row struct {
	Site string `json:"site"`
	Ms   int64  `json:"ms"`
	Time string `json:"time"`
}

// Day is one history date.
type Day struct {
	Date    string `json:"date"`
	TotalMs int64  `json:"totalMs"`
	Total   string `json:"total"`
	Sites   []Row  `json:"sites"`
}

// DailyRows returns td sorted by time spent, largest first.
func DailyRows(td storage.TimeData) []Row {
	rows := make([]Row, 0, len(td))
	for site, ms := range td {
		rows = append(rows, Row{Site: site, Ms: ms, Time: usage.FormatDuration(ms)})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Ms != rows[j].Ms {
			return rows[i].Ms > rows[j].Ms
		}
		return rows[i].Site < rows[j].Site
	})
	return rows
}

// HistoryDays returns the history dates sorted by the day's total, largest
// first. Ties are broken by the most recent date.
func HistoryDays(h storage.History) []Day {
	days := make([]Day, 0, len(h))
	for date, td := range h {
		total := td.Total()
		days = append(days, Day{
			Date:    date,
			TotalMs: total,
			Total:   usage.FormatDuration(total),
			Sites:   DailyRows(td),
		})
	}
	sort.Slice(days, func(i, j int) bool {
		if days[i].TotalMs != days[j].TotalMs {
			return days[i].TotalMs > days[j].TotalMs
		}
		return days[i].Date > days[j].Date
	})
	return days
}

// WriteCSV exports h with the Date, Site, Time Spent columns. Dates are
// written newest first, sites by time spent.
func WriteCSV(w io.Writer, h storage.History) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, date := range h.Dates() {
		for _, row := range DailyRows(h[date]) {
			if err := cw.Write([]string{date, row.Site, row.Time}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// RenderToday renders today's totals as a table.
func RenderToday(td storage.TimeData) string {
	tw := newTable("Today")
	tw.AppendHeader(table.Row{"Site", "Time Spent"})
	for _, row := range DailyRows(td) {
		tw.AppendRow(table.Row{row.Site, row.Time})
	}
	tw.AppendFooter(table.Row{"Total", usage.FormatDuration(td.Total())})
	return tw.Render()
}

// RenderHistory renders the retained history as a table, one row per date.
func RenderHistory(h storage.History) string {
	tw := newTable("History")
	tw.AppendHeader(table.Row{"Date", "Sites", "Total"})
	for _, day := range HistoryDays(h) {
		sites := make([]string, 0, len(day.Sites))
		for _, row := range day.Sites {
			sites = append(sites, row.Site+": "+row.Time)
		}
		tw.AppendRow(table.Row{day.Date, strings.Join(sites, "\n"), day.Total})
		tw.AppendSeparator()
	}
	return tw.Render()
}

func newTable(title string) table.Writer {
	tw := table.NewWriter()
	tw.SetTitle(title)
	tw.SetStyle(table.StyleLight)
	tw.Style().Options.SeparateColumns = false
	return tw
}

// WriteChart draws a horizontal bar per site, scaled to width characters for
// the largest value, labelled with whole minutes.
func WriteChart(w io.Writer, td storage.TimeData, width int) error {
	rows := DailyRows(td)
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No time tracked today.")
		return err
	}
	if width < 1 {
		width = 40
	}

	labelWidth := 0
	for _, row := range rows {
		if len(row.Site) > labelWidth {
			labelWidth = len(row.Site)
		}
	}

	bar := color.New(color.FgBlue)
	maxMinutes := rows[0].Ms / 60000
	for _, row := range rows {
		minutes := row.Ms / 60000
		n := 0
		if maxMinutes > 0 {
			n = int(minutes * int64(width) / maxMinutes)
		}
		if _, err := fmt.Fprintf(w, "%-*s %s %d min\n", labelWidth, row.Site, bar.Sprint(strings.Repeat("█", n)), minutes); err != nil {
			return err
		}
	}
	return nil
}

// MaxGoalMinutes is the largest accepted daily goal. No day holds more
// browsing time than this.
const MaxGoalMinutes = 24 * 60

// ErrInvalidGoal is returned for goals outside [0, MaxGoalMinutes].
var ErrInvalidGoal = errors.New("invalid daily goal")

// Settings writes the user-facing configuration fields.
type Settings struct {
	store storage.AggregateStore
}

// NewSettings creates a settings writer over store.
func NewSettings(store storage.AggregateStore) *Settings {
	return &Settings{store: store}
}

// SetGoal stores a daily limit of minutes minutes and returns it in ms.
func (s *Settings) SetGoal(ctx context.Context, minutes int64) (int64, error) {
	if minutes < 0 || minutes > MaxGoalMinutes {
		return 0, fmt.Errorf("%w: %d minutes (must be between 0 and %d)", ErrInvalidGoal, minutes, MaxGoalMinutes)
	}
	limit := minutes * 60000
	if err := s.store.Set(ctx, storage.Record{DailyLimit: storage.Int64(limit)}); err != nil {
		return 0, fmt.Errorf("store daily goal: %w", err)
	}
	return limit, nil
}

// SetAlerts enables or disables limit alerts.
func (s *Settings) SetAlerts(ctx context.Context, enabled bool) error {
	if err := s.store.Set(ctx, storage.Record{AlertsEnabled: storage.Bool(enabled)}); err != nil {
		return fmt.Errorf("store alert setting: %w", err)
	}
	return nil
}
