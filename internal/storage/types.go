package storage

import (
	"maps"
	"sort"
	"time"
)

// Field names a top-level persisted value.
type Field string

const (
	FieldTimeData      Field = "timeData"
	FieldHistory       Field = "history"
	FieldLastReset     Field = "lastReset"
	FieldDailyLimit    Field = "dailyLimit"
	FieldAlertsEnabled Field = "alertsEnabled"
)

// AllFields lists every persisted field in a stable order.
var AllFields = []Field{
	FieldTimeData,
	FieldHistory,
	FieldLastReset,
	FieldDailyLimit,
	FieldAlertsEnabled,
}

const (
	// DefaultDailyLimit is the alert threshold in milliseconds (one hour).
	DefaultDailyLimit int64 = 3_600_000

	// DefaultAlertsEnabled is used when alertsEnabled was never written.
	DefaultAlertsEnabled = true

	// DateLayout is the calendar date format used for history keys and lastReset.
	DateLayout = "2006-01-02"
)

// TimeData maps a site key to accumulated milliseconds.
type TimeData map[string]int64

// Total returns the sum of all site values.
func (t TimeData) Total() int64 {
	var total int64
	for _, ms := range t {
		total += ms
	}
	return total
}

// Clone returns a copy that never shares storage with t. A nil TimeData
// stays nil.
func (t TimeData) Clone() TimeData {
	if t == nil {
		return nil
	}
	return maps.Clone(t)
}

// History maps a calendar date to that day's per-site totals.
type History map[string]TimeData

// Clone returns a deep copy of h. A nil History stays nil.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	for date, sites := range h {
		if sites == nil {
			sites = TimeData{}
		}
		out[date] = sites.Clone()
	}
	return out
}

// Dates returns the history dates, most recent first.
func (h History) Dates() []string {
	dates := make([]string, 0, len(h))
	for date := range h {
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates
}

// Record is a partial view of persisted state.
//
// A nil map or nil pointer means the field is absent. An empty but non-nil
// map is a present, empty value; this is how a daily reset writes
// timeData = {}.
type Record struct {
	TimeData      TimeData
	History       History
	LastReset     *string
	DailyLimit    *int64
	AlertsEnabled *bool
}

// Has reports whether field f is present in the record.
func (r Record) Has(f Field) bool {
	switch f {
	case FieldTimeData:
		return r.TimeData != nil
	case FieldHistory:
		return r.History != nil
	case FieldLastReset:
		return r.LastReset != nil
	case FieldDailyLimit:
		return r.DailyLimit != nil
	case FieldAlertsEnabled:
		return r.AlertsEnabled != nil
	}
	return false
}

// Fields returns the present fields in AllFields order.
func (r Record) Fields() []Field {
	fields := make([]Field, 0, len(AllFields))
	for _, f := range AllFields {
		if r.Has(f) {
			fields = append(fields, f)
		}
	}
	return fields
}

// Empty reports whether no field is present.
func (r Record) Empty() bool {
	return len(r.Fields()) == 0
}

// Merge returns r overlaid with every field present in other.
func (r Record) Merge(other Record) Record {
	if other.TimeData != nil {
		r.TimeData = other.TimeData
	}
	if other.History != nil {
		r.History = other.History
	}
	if other.LastReset != nil {
		r.LastReset = other.LastReset
	}
	if other.DailyLimit != nil {
		r.DailyLimit = other.DailyLimit
	}
	if other.AlertsEnabled != nil {
		r.AlertsEnabled = other.AlertsEnabled
	}
	return r
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := Record{
		TimeData: r.TimeData.Clone(),
		History:  r.History.Clone(),
	}
	if r.LastReset != nil {
		v := *r.LastReset
		out.LastReset = &v
	}
	if r.DailyLimit != nil {
		v := *r.DailyLimit
		out.DailyLimit = &v
	}
	if r.AlertsEnabled != nil {
		v := *r.AlertsEnabled
		out.AlertsEnabled = &v
	}
	return out
}

// DailyLimitOr returns the stored daily limit or fallback when absent.
func (r Record) DailyLimitOr(fallback int64) int64 {
	if r.DailyLimit == nil {
		return fallback
	}
	return *r.DailyLimit
}

// AlertsEnabledOr returns the stored alert toggle or fallback when absent.
func (r Record) AlertsEnabledOr(fallback bool) bool {
	if r.AlertsEnabled == nil {
		return fallback
	}
	return *r.AlertsEnabled
}

// Backup is the snapshot written to the BackupStore after each aggregate write.
type Backup struct {
	TimeData    TimeData  `json:"timeData"`
	History     History   `json:"history"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// String returns a pointer to s, for building Records.
func String(s string) *string { return &s }

// Int64 returns a pointer to v, for building Records.
func Int64(v int64) *int64 { return &v }

// Bool returns a pointer to v, for building Records.
func Bool(v bool) *bool { return &v }
