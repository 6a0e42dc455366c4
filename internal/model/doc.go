// Package model defines the core data structures used throughout gridwatch.
//
// This package contains the following main types:
//   - Row and Cell: one captured table row and its individual values
//   - TableSnapshot: every row captured by a single check run
//   - Finding: an empty cell tracked across runs (new, persisting, resolved)
//   - Comment: an operator note attached to a finding
//   - ColumnCatalog: the append-only union of every column ever seen
//   - Stats: per-run counters derived from the diff
//   - CheckRun: the accumulated result of one pipeline execution
//   - ExportDocument: the JSON document handed to chat users and re-imported later
//
// Models live in their own package so that extract, findings, database, report
// and api can share them without import cycles. All types serialize to JSON.
package model
