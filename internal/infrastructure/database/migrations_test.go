package database

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"
	"time"
)

// sampleMigrations is a single reversible migration used by the tests.
var sampleMigrations = fstest.MapFS{
	"sql/20260101_000000_create_sample.up.sql":   {Data: []byte("CREATE TABLE sample (id INTEGER PRIMARY KEY, name TEXT NOT NULL);")},
	"sql/20260101_000000_create_sample.down.sql": {Data: []byte("DROP TABLE sample;")},
	"sql/README.md": {Data: []byte("ignored")},
}

// useMigrations swaps the package migration source for the duration of a test.
func useMigrations(t *testing.T, fsys fs.FS, dir string) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
	MigrationsFS, MigrationsDir = fsys, dir
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	useMigrations(t, sampleMigrations, "sql")
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "sample") {
		t.Fatal("table sample not created")
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 1/0", len(applied), len(pending))
	}
	if applied[0].AppliedAt.IsZero() {
		t.Error("AppliedAt not recorded")
	}

	// Idempotent
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	useMigrations(t, sampleMigrations, "sql")
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "sample") {
		t.Error("table sample should have been dropped")
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 0 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 0/1", len(applied), len(pending))
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx); err != nil {
		t.Errorf("MigrateDown() on empty history error = %v", err)
	}
}

func TestMigrateFailureRollsBack(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20260101_000000_good.up.sql": {Data: []byte("CREATE TABLE good (id INTEGER);")},
		"20260102_000000_bad.up.sql":  {Data: []byte("CREATE TABLE bad (id INTEGER); INSERT INTO nowhere VALUES (1);")},
	}, ".")
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() expected error from bad migration")
	}
	if !tableExists(t, db, "good") {
		t.Error("earlier migration should stay committed")
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 || pending[0].Name != "bad" {
		t.Errorf("applied=%d pending=%+v, want 1 applied and bad pending", len(applied), pending)
	}
}

func TestMigrateNoMigrations(t *testing.T) {
	useMigrations(t, nil, ".")
	db := openTestDB(t)

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
}

func TestGetMigrationStatus_BeforeMigrate(t *testing.T) {
	useMigrations(t, sampleMigrations, "sql")
	db := openTestDB(t)

	applied, pending, err := db.GetMigrationStatus(context.Background())
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 0 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 0/1", len(applied), len(pending))
	}
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"20260102_000000_second.up.sql":   {Data: []byte("B")},
		"20260101_000000_first.up.sql":    {Data: []byte("A")},
		"20260101_000000_first.down.sql":  {Data: []byte("undo A")},
		"20260103_000000_orphan.down.sql": {Data: []byte("X")},
	}

	got, err := LoadMigrations(fsys, ".")
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "first" || got[0].DownSQL != "undo A" || got[1].Name != "second" {
		t.Errorf("migrations = %+v", got)
	}

	if m, err := LoadMigrations(fsys, "missing"); err != nil || m != nil {
		t.Errorf("missing dir = %v, %v; want nil, nil", m, err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOk      bool
	}{
		{"20260118_120000_create_logs.up.sql", "20260118_120000", "create_logs", true, true},
		{"20260118_120000_add_index_to_logs.down.sql", "20260118_120000", "add_index_to_logs", false, true},
		{"20260118_120000.up.sql", "20260118_120000", "20260118_120000", true, true},
		{"readme.txt", "", "", false, false},
		{"20260118_120000_create_logs.sql", "", "", false, false},
		{"invalid.up.sql", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			f, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if !ok {
				return
			}
			if f.version != tt.wantVersion || f.name != tt.wantName || f.up != tt.wantUp {
				t.Errorf("got %+v, want version=%s name=%s up=%v", f, tt.wantVersion, tt.wantName, tt.wantUp)
			}
		})
	}
}
