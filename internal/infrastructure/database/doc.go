// Package database provides SQLite connectivity for the RV-C bridge.
//
// The bridge keeps a single SQLite file holding the device event log.
// This package manages:
//   - The connection, with WAL mode and a busy timeout
//   - Versioned schema migrations embedded in the binary
//   - Health checks and lifecycle management
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files live in the top-level migrations package and follow
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql naming. LoadMigrations is
// exported so other SQL backends can share the same file layout.
package database
