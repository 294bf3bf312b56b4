package eventlog

import (
	"context"
	"strings"
	"time"
)

// Query page sizes.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// timestampLayout matches SQLite's strftime('%Y-%m-%dT%H:%M:%fZ'), so stored
// values sort and compare lexically.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Entry is one row of the event log.
//
// Status holds the device state (or request payload) as JSON text.
type Entry struct {
	ID         int64     `json:"id"`
	DeviceID   string    `json:"deviceId"`
	DeviceType string    `json:"deviceType"`
	Event      string    `json:"event"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// Filter selects entries for Query, Count and Delete.
//
// Empty string fields and nil times match everything. Start and End are
// inclusive. Limit and Offset are ignored by Count and Delete.
type Filter struct {
	DeviceID   string
	DeviceType string
	Event      string
	Start      *time.Time
	End        *time.Time

	// Limit is the page size. 0 selects the repository default; a negative
	// value returns every match (used by CSV export).
	Limit  int
	Offset int
}

// Limits bounds query page sizes. The zero value selects DefaultLimit and
// MaxLimit.
type Limits struct {
	Default int
	Max     int
}

func (l Limits) normalise() Limits {
	if l.Default <= 0 {
		l.Default = DefaultLimit
	}
	if l.Max <= 0 {
		l.Max = MaxLimit
	}
	if l.Default > l.Max {
		l.Default = l.Max
	}
	return l
}

// page returns the effective limit (-1 for unlimited) and offset.
func (l Limits) page(f Filter) (limit, offset int) {
	l = l.normalise()

	switch {
	case f.Limit < 0:
		limit = -1
	case f.Limit == 0:
		limit = l.Default
	case f.Limit > l.Max:
		limit = l.Max
	default:
		limit = f.Limit
	}

	offset = f.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Repository persists event log entries.
type Repository interface {
	// Insert stores e and sets its ID (and Timestamp when zero).
	Insert(ctx context.Context, e *Entry) error

	// Query returns matching entries, newest first.
	Query(ctx context.Context, f Filter) ([]Entry, error)

	// Count returns the number of matching entries.
	Count(ctx context.Context, f Filter) (int, error)

	// Delete removes matching entries and returns how many were removed.
	Delete(ctx context.Context, f Filter) (int64, error)
}

// columns names the log table's columns for one SQL dialect.
type columns struct {
	deviceID   string
	deviceType string
	event      string
	timestamp  string
}

// where builds a parameterised WHERE clause. placeholder renders the n-th
// (1-based) bind parameter. formatTime converts a bound to the driver's value.
func where(f Filter, cols columns, placeholder func(n int) string, formatTime func(time.Time) any) (string, []any) {
	var conditions []string
	var args []any

	add := func(expr string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, expr+placeholder(len(args)))
	}

	if f.DeviceID != "" {
		add(cols.deviceID+" = ", f.DeviceID)
	}
	if f.DeviceType != "" {
		add(cols.deviceType+" = ", f.DeviceType)
	}
	if f.Event != "" {
		add(cols.event+" = ", f.Event)
	}
	if f.Start != nil {
		add(cols.timestamp+" >= ", formatTime(*f.Start))
	}
	if f.End != nil {
		add(cols.timestamp+" <= ", formatTime(*f.End))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func validateEntry(e *Entry) error {
	if e == nil || e.DeviceID == "" || e.Event == "" {
		return ErrInvalidEntry
	}
	if e.Status == "" {
		e.Status = "{}"
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return nil
}
