package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var sqliteColumns = columns{
	deviceID:   "deviceId",
	deviceType: "deviceType",
	event:      "event",
	timestamp:  "timestamp",
}

// SQLiteRepository stores the event log in the SQLite logs table.
type SQLiteRepository struct {
	db     *sql.DB
	limits Limits
}

// NewSQLiteRepository creates a repository on an open, migrated database.
//
// Parameters:
//   - db: Open SQLite connection
//   - limits: Query page sizes; zero value selects the defaults
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
func NewSQLiteRepository(db *sql.DB, limits Limits) *SQLiteRepository {
	return &SQLiteRepository{db: db, limits: limits.normalise()}
}

func sqlitePlaceholder(int) string { return "?" }

func sqliteTime(t time.Time) any { return t.UTC().Format(timestampLayout) }

// Insert stores a new entry.
func (r *SQLiteRepository) Insert(ctx context.Context, e *Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO logs (deviceId, deviceType, event, status, timestamp) VALUES (?, ?, ?, ?, ?)",
		e.DeviceID, e.DeviceType, e.Event, e.Status, sqliteTime(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting log entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading log entry id: %w", err)
	}
	e.ID = id
	return nil
}

// Query returns entries matching f, newest first.
func (r *SQLiteRepository) Query(ctx context.Context, f Filter) ([]Entry, error) {
	clause, args := where(f, sqliteColumns, sqlitePlaceholder, sqliteTime)
	limit, offset := r.limits.page(f)

	// WHERE is built from parameterised conditions, never from input text.
	query := "SELECT id, deviceId, deviceType, event, status, timestamp FROM logs" + clause + //nolint:gosec // parameterised
		" ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.DeviceType, &e.Event, &e.Status, &ts); err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}
		if e.Timestamp, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating logs: %w", err)
	}
	return entries, nil
}

// Count returns the number of entries matching f.
func (r *SQLiteRepository) Count(ctx context.Context, f Filter) (int, error) {
	clause, args := where(f, sqliteColumns, sqlitePlaceholder, sqliteTime)

	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM logs"+clause, args...).Scan(&n); err != nil { //nolint:gosec // parameterised
		return 0, fmt.Errorf("counting logs: %w", err)
	}
	return n, nil
}

// Delete removes entries matching f.
func (r *SQLiteRepository) Delete(ctx context.Context, f Filter) (int64, error) {
	clause, args := where(f, sqliteColumns, sqlitePlaceholder, sqliteTime)

	res, err := r.db.ExecContext(ctx, "DELETE FROM logs"+clause, args...) //nolint:gosec // parameterised
	if err != nil {
		return 0, fmt.Errorf("deleting logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading deleted count: %w", err)
	}
	return n, nil
}

// parseTimestamp accepts the stored layout plus the shapes SQLite's own
// date functions produce.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing log timestamp %q", s)
}
