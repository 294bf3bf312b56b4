package postgres

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"testing/fstest"

	"github.com/nerrad567/rvc-bridge/internal/infrastructure/config"
)

// connectOrSkip connects to RVCBRIDGE_TEST_POSTGRES_DSN or skips.
func connectOrSkip(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("RVCBRIDGE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RVCBRIDGE_TEST_POSTGRES_DSN not set")
	}
	db, err := Connect(context.Background(), config.PostgresConfig{DSN: dsn, MaxConns: 2})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

func TestConnect_NotConfigured(t *testing.T) {
	if _, err := Connect(context.Background(), config.PostgresConfig{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Connect() error = %v, want ErrNotConfigured", err)
	}
}

func TestConnect_BadDSN(t *testing.T) {
	if _, err := Connect(context.Background(), config.PostgresConfig{DSN: "postgres://%zz"}); err == nil {
		t.Error("Connect() with malformed DSN expected error")
	}
}

func TestSplitStatements(t *testing.T) {
	sql := `-- leading comment
CREATE TABLE logs (
    id BIGSERIAL PRIMARY KEY
);

CREATE INDEX idx ON logs (id);
SELECT 1`

	want := []string{
		"CREATE TABLE logs (\n    id BIGSERIAL PRIMARY KEY\n)",
		"CREATE INDEX idx ON logs (id)",
		"SELECT 1",
	}
	if got := splitStatements(sql); !reflect.DeepEqual(got, want) {
		t.Errorf("splitStatements() = %#v, want %#v", got, want)
	}
}

func TestMigrate_Live(t *testing.T) {
	db := connectOrSkip(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"pg/19990101_000000_create_sample.up.sql": {Data: []byte("CREATE TABLE IF NOT EXISTS rvc_sample (id INT);\n")},
	}
	t.Cleanup(func() {
		db.Exec(ctx, "DROP TABLE IF EXISTS rvc_sample")                                 //nolint:errcheck // Test cleanup
		db.Exec(ctx, "DELETE FROM schema_migrations WHERE version = '19990101_000000'") //nolint:errcheck // Test cleanup
	})

	for i := 0; i < 2; i++ {
		if err := db.Migrate(ctx, fsys, "pg"); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i+1, err)
		}
	}
	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}
}
