// Package database provides SQLite-based storage for gridwatch.
//
// This package implements the FindingsDB, which stores per target:
//   - Committed check runs with their table snapshot and stats
//   - Findings, upserted by id on every commit
//   - Operator comments, which retention never deletes
//   - The append-only column catalog
//
// The database is one SQLite file opened through the CGO-free
// modernc.org/sqlite driver in WAL mode, so the HTTP API can read while a
// check commits.
//
// A TargetStore satisfies findings.Persister, so the in-memory store writes
// through to SQLite before it publishes a new state.
package database
