package eventlog

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresColumns = columns{
	deviceID:   "device_id",
	deviceType: "device_type",
	event:      "event",
	timestamp:  "timestamp",
}

// PostgresRepository stores the event log in PostgreSQL.
//
// The status column is JSONB so entries can be queried by attribute from
// outside the bridge.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	limits Limits
}

// NewPostgresRepository creates a repository on a migrated pool.
func NewPostgresRepository(pool *pgxpool.Pool, limits Limits) *PostgresRepository {
	return &PostgresRepository{pool: pool, limits: limits.normalise()}
}

func postgresPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

func postgresTime(t time.Time) any { return t.UTC() }

// Insert stores a new entry.
func (r *PostgresRepository) Insert(ctx context.Context, e *Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO logs (device_id, device_type, event, status, timestamp)
		 VALUES ($1, $2, $3, $4::jsonb, $5) RETURNING id`,
		e.DeviceID, e.DeviceType, e.Event, e.Status, e.Timestamp.UTC(),
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("inserting log entry: %w", err)
	}
	return nil
}

// Query returns entries matching f, newest first.
func (r *PostgresRepository) Query(ctx context.Context, f Filter) ([]Entry, error) {
	clause, args := where(f, postgresColumns, postgresPlaceholder, postgresTime)
	limit, offset := r.limits.page(f)

	query := "SELECT id, device_id, device_type, event, status::text, timestamp FROM logs" + clause +
		" ORDER BY timestamp DESC, id DESC"
	if limit >= 0 {
		args = append(args, limit)
		query += " LIMIT " + postgresPlaceholder(len(args))
	}
	args = append(args, offset)
	query += " OFFSET " + postgresPlaceholder(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.DeviceID, &e.DeviceType, &e.Event, &e.Status, &e.Timestamp)
		e.Timestamp = e.Timestamp.UTC()
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning logs: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Count returns the number of entries matching f.
func (r *PostgresRepository) Count(ctx context.Context, f Filter) (int, error) {
	clause, args := where(f, postgresColumns, postgresPlaceholder, postgresTime)

	var n int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM logs"+clause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting logs: %w", err)
	}
	return n, nil
}

// Delete removes entries matching f.
func (r *PostgresRepository) Delete(ctx context.Context, f Filter) (int64, error) {
	clause, args := where(f, postgresColumns, postgresPlaceholder, postgresTime)

	tag, err := r.pool.Exec(ctx, "DELETE FROM logs"+clause, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
