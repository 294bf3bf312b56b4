package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nerrad567/rvc-bridge/internal/infrastructure/config"
	"github.com/nerrad567/rvc-bridge/internal/infrastructure/database"
)

// connectTimeout bounds pool creation and the first ping when the caller's
// context has no deadline.
const connectTimeout = 10 * time.Second

// ErrNotConfigured is returned by Connect when no DSN is set.
var ErrNotConfigured = errors.New("postgres: dsn not configured")

// DB wraps a pgx connection pool.
type DB struct {
	*pgxpool.Pool
}

// Connect creates a connection pool and verifies it with a ping.
//
// Parameters:
//   - ctx: Context bounding the connection check
//   - cfg: PostgreSQL section of config.yaml
//
// Returns:
//   - *DB: Connected pool
//   - error: ErrNotConfigured, or a wrapped connection failure
func Connect(ctx context.Context, cfg config.PostgresConfig) (*DB, error) {
	if cfg.DSN == "" {
		return nil, ErrNotConfigured
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns) // #nosec G115 -- small config value
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, connectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// HealthCheck pings the server.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

// Close releases every pooled connection.
func (db *DB) Close() error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	return nil
}

// Migrate applies the pending migrations found under dir in fsys.
//
// It shares the file layout of the SQLite migrations and tracks applied
// versions in its own schema_migrations table. Each migration runs in one
// transaction.
func (db *DB) Migrate(ctx context.Context, fsys fs.FS, dir string) error {
	if _, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	all, err := database.LoadMigrations(fsys, dir)
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range database.Pending(all, applied) {
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func (db *DB) appliedVersions(ctx context.Context) ([]database.MigrationRecord, error) {
	rows, err := db.Query(ctx, `SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var records []database.MigrationRecord
	for rows.Next() {
		var r database.MigrationRecord
		if err := rows.Scan(&r.Version, &r.AppliedAt); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return records, nil
}

func (db *DB) applyMigration(ctx context.Context, m database.Migration) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // Rollback is no-op after commit

	for i, stmt := range splitStatements(m.UpSQL) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}
	return nil
}

// splitStatements breaks a migration into statements on ";" line ends and
// drops "--" comment lines. Statements must not embed semicolons in literals.
func splitStatements(sql string) []string {
	var (
		stmts []string
		cur   strings.Builder
	)
	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			if s := strings.TrimSuffix(strings.TrimSpace(cur.String()), ";"); s != "" {
				stmts = append(stmts, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}
