package usage

import (
	"time"

	"github.com/goodtune/sitetime/internal/storage"
)

// DefaultRetentionDays is the number of calendar dates kept in history.
const DefaultRetentionDays = 7

// Persister accepts fire-and-forget writes of the aggregate state.
// *persistence.Facade satisfies it.
type Persister interface {
	Save(rec storage.Record) <-chan error
}

// Config holds tracker configuration
type Config struct {
	RetentionDays     int
	HostnameCacheSize int
}

// Session describes the in-progress session, if any.
type Session struct {
	Site      string
	StartTime time.Time
}

// Snapshot is a point-in-time copy of the tracker's state.
type Snapshot struct {
	Today     string
	TimeData  storage.TimeData
	History   storage.History
	LastReset string
	Session   *Session
}
