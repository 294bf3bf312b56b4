// Package migrations embeds the event log schema into the binary.
//
// SQLite migrations are registered with the database package at init time.
// PostgreSQL migrations are exposed through PostgresFS for the postgres
// event log backend.
package migrations

import (
	"embed"
	"io/fs"

	"github.com/nerrad567/rvc-bridge/internal/infrastructure/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var migrationsFS embed.FS

// PostgresDir is the directory within PostgresFS holding the PostgreSQL set.
const PostgresDir = "postgres"

// PostgresFS returns the embedded PostgreSQL migrations.
func PostgresFS() fs.FS {
	return migrationsFS
}

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "sqlite"
}
