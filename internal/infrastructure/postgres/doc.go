// Package postgres provides PostgreSQL connectivity for the RV-C bridge.
//
// It is used when eventlog.driver is "postgres", for deployments that keep
// the device event log in a shared database rather than the local SQLite
// file. Connections come from a pgx pool; the schema is applied from the
// embedded migrations package at startup.
//
// Usage:
//
//	db, err := postgres.Connect(ctx, cfg.Postgres)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.PostgresFS(), migrations.PostgresDir); err != nil {
//	    return err
//	}
package postgres
