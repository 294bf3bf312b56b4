// Package eventlog records every device state transition for audit and
// export.
//
// Entries are written asynchronously by a Recorder so that command
// dispatch never waits on storage. Two Repository implementations exist:
//   - SQLiteRepository, the default, on the bridge's SQLite file
//   - PostgresRepository, selected with eventlog.driver: postgres
//
// The log is append-only from the dispatcher's point of view. Entries are
// only removed through an explicit Delete (the DELETE /logs endpoint).
package eventlog
