package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/gridwatch/internal/findings"
	"github.com/nao1215/gridwatch/internal/model"
)

// fileName is the database file inside the data directory.
const fileName = "gridwatch.db"

// FindingsDB provides SQLite-based storage for snapshots, findings, comments
// and the column catalog of every monitored target.
//
// All targets share one database file; every row carries its target name.
type FindingsDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures FindingsDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so API reads do not wait for check commits.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a FindingsDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*FindingsDB, error) {
	dbPath := filepath.Join(dbDir, fileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file, mode=rwc creates it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	fdb := &FindingsDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := fdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return fdb, nil
}

// Close closes the database connection.
func (fdb *FindingsDB) Close() error {
	return fdb.db.Close()
}

// Path returns the database file path.
func (fdb *FindingsDB) Path() string {
	return fdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (fdb *FindingsDB) createTables() error {
	schema := `
	-- One row per committed check run
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		revision INTEGER NOT NULL,
		run_timestamp TEXT NOT NULL,
		committed_at TEXT NOT NULL,
		source_url TEXT,
		partial INTEGER NOT NULL DEFAULT 0,
		strategy TEXT,
		snapshot_json TEXT,
		stats_json TEXT NOT NULL,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_target ON runs(target, run_timestamp);

	-- Findings are upserted by id; retention deletes them
	CREATE TABLE IF NOT EXISTS findings (
		id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		row_identity TEXT NOT NULL,
		column_name TEXT NOT NULL,
		status TEXT NOT NULL,
		first_seen_run TEXT NOT NULL,
		last_seen_run TEXT NOT NULL,
		table_name TEXT,
		row_label TEXT,
		raw_value TEXT,
		comment TEXT,
		ai_note TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_findings_target ON findings(target, status);

	-- Comments are never deleted by retention
	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		finding_id TEXT NOT NULL,
		author TEXT,
		body TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_comments_target ON comments(target, created_at);

	-- Append-only column catalog
	CREATE TABLE IF NOT EXISTS columns (
		target TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		first_seen TEXT NOT NULL,
		last_seen TEXT NOT NULL,
		guessed INTEGER NOT NULL DEFAULT 0,
		samples_json TEXT,
		PRIMARY KEY (target, name)
	);
	`

	_, err := fdb.db.ExecContext(context.Background(), schema)
	return err
}

// Target returns the storage handle of one target. It implements findings.Persister.
func (fdb *FindingsDB) Target(name string) *TargetStore {
	return &TargetStore{db: fdb.db, target: name}
}

// ListTargets returns every target that has at least one stored run.
func (fdb *FindingsDB) ListTargets(ctx context.Context) ([]string, error) {
	rows, err := fdb.db.QueryContext(ctx, `SELECT DISTINCT target FROM runs ORDER BY target`)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// TargetStore persists the state of a single target.
type TargetStore struct {
	db     *sql.DB
	target string
}

var _ findings.Persister = (*TargetStore)(nil)

// SaveRun stores the run metadata and snapshot, then upserts all findings and
// catalog columns in one transaction. A state without a snapshot (an import of
// an empty document) only writes findings and columns.
func (ts *TargetStore) SaveRun(ctx context.Context, st *findings.State) error {
	tx, err := ts.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if st.Snapshot != nil {
		snapJSON, err := json.Marshal(st.Snapshot)
		if err != nil {
			return fmt.Errorf("failed to serialize snapshot: %w", err)
		}
		statsJSON, err := json.Marshal(st.Stats)
		if err != nil {
			return fmt.Errorf("failed to serialize stats: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (target, revision, run_timestamp, committed_at, source_url, partial, strategy, snapshot_json, stats_json, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ts.target,
			st.Revision,
			formatTimestamp(st.Snapshot.RunTimestamp),
			formatTimestamp(st.CommittedAt),
			st.Snapshot.SourceURL,
			st.Snapshot.Partial,
			st.Snapshot.Strategy,
			string(snapJSON),
			string(statsJSON),
			st.Summary,
		)
		if err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
	}

	if err := upsertFindings(ctx, tx, ts.target, st.Findings); err != nil {
		return err
	}
	if err := upsertColumns(ctx, tx, ts.target, st.Catalog); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// SaveFindings upserts findings.
func (ts *TargetStore) SaveFindings(ctx context.Context, fs []model.Finding) error {
	tx, err := ts.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertFindings(ctx, tx, ts.target, fs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit findings: %w", err)
	}
	return nil
}

// SaveComment stores a comment.
func (ts *TargetStore) SaveComment(ctx context.Context, c model.Comment) error {
	_, err := ts.db.ExecContext(ctx, `
	INSERT INTO comments (id, target, finding_id, author, body, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`,
		c.ID, ts.target, c.FindingID, c.Author, c.Body, formatTimestamp(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save comment: %w", err)
	}
	return nil
}

// DeleteFindings removes findings by id.
func (ts *TargetStore) DeleteFindings(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, ts.target)
	for _, id := range ids {
		args = append(args, id)
	}

	query := `DELETE FROM findings WHERE target = ? AND id IN (` + placeholders + `)` //nolint:gosec // placeholders only
	if _, err := ts.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete findings: %w", err)
	}
	return nil
}

// SaveSummary sets the summary of the stored run that committed run.
func (ts *TargetStore) SaveSummary(ctx context.Context, run *findings.State, summary string) error {
	if run == nil || run.Snapshot == nil {
		return errors.New("failed to save summary: run has no snapshot")
	}
	res, err := ts.db.ExecContext(ctx, `
	UPDATE runs SET summary = ?
	WHERE target = ? AND revision = ? AND run_timestamp = ?`,
		summary, ts.target, run.Revision, formatTimestamp(run.Snapshot.RunTimestamp))
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failed to save summary: no stored run at revision %d", run.Revision)
	}
	return nil
}

// PruneRuns deletes stored snapshots of runs older than cutoff, always keeping
// the latest run. Snapshots hold raw cell values, so they age out with the
// rest of the raw artifacts.
func (ts *TargetStore) PruneRuns(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := ts.db.ExecContext(ctx, `
	DELETE FROM runs
	WHERE target = ?
	  AND run_timestamp < ?
	  AND id <> (SELECT MAX(id) FROM runs WHERE target = ?)`,
		ts.target, formatTimestamp(cutoff), ts.target)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned runs: %w", err)
	}
	return int(n), nil
}

// LoadState rebuilds the latest committed state of the target. A target
// without stored runs yields a nil state and no error.
func (ts *TargetStore) LoadState(ctx context.Context) (*findings.State, error) {
	latest, err := ts.latestRun(ctx)
	if err != nil {
		return nil, err
	}

	fs, err := ts.loadFindings(ctx)
	if err != nil {
		return nil, err
	}
	comments, err := ts.loadComments(ctx)
	if err != nil {
		return nil, err
	}
	catalog, err := ts.loadColumns(ctx)
	if err != nil {
		return nil, err
	}
	if latest == nil && len(fs) == 0 && len(comments) == 0 {
		return nil, nil
	}

	st := &findings.State{
		Target:   ts.target,
		Findings: fs,
		Comments: comments,
		Catalog:  catalog,
		Stats:    model.Stats{ByColumn: map[string]int{}},
	}
	if latest != nil {
		st.Revision = latest.Revision
		st.CommittedAt = latest.CommittedAt
		st.Snapshot = latest.Snapshot
		st.Stats = latest.Stats
		st.Summary = latest.Summary
	}
	return st, nil
}

// RunRecord is one stored check run.
type RunRecord struct {
	ID           int64
	Target       string
	Revision     uint64
	RunTimestamp time.Time
	CommittedAt  time.Time
	SourceURL    string
	Partial      bool
	Strategy     string
	Stats        model.Stats
	Summary      string

	// Snapshot is only loaded by GetRun.
	Snapshot *model.TableSnapshot
}

// ListRuns returns the target's runs, newest first, without snapshots.
func (ts *TargetStore) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := ts.db.QueryContext(ctx, `
	SELECT id, target, revision, run_timestamp, committed_at, source_url, partial, strategy, stats_json, summary
	FROM runs
	WHERE target = ?
	ORDER BY id DESC`, ts.target)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows, false)
		if err != nil {
			return nil, err
		}
		results = append(results, *rec)
	}
	return results, rows.Err()
}

// GetRun returns a run with its snapshot, or nil if no run has the id.
func (ts *TargetStore) GetRun(ctx context.Context, id int64) (*RunRecord, error) {
	row := ts.db.QueryRowContext(ctx, `
	SELECT id, target, revision, run_timestamp, committed_at, source_url, partial, strategy, stats_json, summary, snapshot_json
	FROM runs
	WHERE target = ? AND id = ?`, ts.target, id)
	rec, err := scanRun(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (ts *TargetStore) latestRun(ctx context.Context) (*RunRecord, error) {
	row := ts.db.QueryRowContext(ctx, `
	SELECT id, target, revision, run_timestamp, committed_at, source_url, partial, strategy, stats_json, summary, snapshot_json
	FROM runs
	WHERE target = ?
	ORDER BY id DESC
	LIMIT 1`, ts.target)
	rec, err := scanRun(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner, withSnapshot bool) (*RunRecord, error) {
	var (
		rec                      RunRecord
		runTS, committedAt       string
		sourceURL, strategy, sum sql.NullString
		statsJSON                string
		snapJSON                 sql.NullString
	)
	dest := []any{&rec.ID, &rec.Target, &rec.Revision, &runTS, &committedAt, &sourceURL, &rec.Partial, &strategy, &statsJSON, &sum}
	if withSnapshot {
		dest = append(dest, &snapJSON)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	rec.RunTimestamp = parseTimestamp(runTS)
	rec.CommittedAt = parseTimestamp(committedAt)
	rec.SourceURL = sourceURL.String
	rec.Strategy = strategy.String
	rec.Summary = sum.String
	if err := json.Unmarshal([]byte(statsJSON), &rec.Stats); err != nil {
		return nil, fmt.Errorf("failed to parse stats: %w", err)
	}
	if rec.Stats.ByColumn == nil {
		rec.Stats.ByColumn = map[string]int{}
	}
	if withSnapshot && snapJSON.Valid && snapJSON.String != "" {
		var snap model.TableSnapshot
		if err := json.Unmarshal([]byte(snapJSON.String), &snap); err != nil {
			return nil, fmt.Errorf("failed to parse snapshot: %w", err)
		}
		rec.Snapshot = &snap
	}
	return &rec, nil
}

func (ts *TargetStore) loadFindings(ctx context.Context) ([]model.Finding, error) {
	rows, err := ts.db.QueryContext(ctx, `
	SELECT id, row_identity, column_name, status, first_seen_run, last_seen_run, table_name, row_label, raw_value, comment, ai_note
	FROM findings
	WHERE target = ?`, ts.target)
	if err != nil {
		return nil, fmt.Errorf("failed to load findings: %w", err)
	}
	defer rows.Close()

	out := []model.Finding{}
	for rows.Next() {
		var (
			f                                model.Finding
			status, firstSeen, lastSeen      string
			table, label, raw, comment, note sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.RowIdentity, &f.ColumnName, &status, &firstSeen, &lastSeen,
			&table, &label, &raw, &comment, &note); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		parsed, err := model.ParseStatus(status)
		if err != nil {
			return nil, fmt.Errorf("finding %s: %w", f.ID, err)
		}
		f.Status = parsed
		f.FirstSeenRun = parseTimestamp(firstSeen)
		f.LastSeenRun = parseTimestamp(lastSeen)
		f.Table, f.RowLabel, f.RawValue = table.String, label.String, raw.String
		f.Comment, f.AINote = comment.String, note.String
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	findings.SortFindings(out)
	return out, nil
}

func (ts *TargetStore) loadComments(ctx context.Context) ([]model.Comment, error) {
	rows, err := ts.db.QueryContext(ctx, `
	SELECT id, finding_id, author, body, created_at
	FROM comments
	WHERE target = ?
	ORDER BY created_at, id`, ts.target)
	if err != nil {
		return nil, fmt.Errorf("failed to load comments: %w", err)
	}
	defer rows.Close()

	out := []model.Comment{}
	for rows.Next() {
		var (
			c         model.Comment
			author    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.FindingID, &author, &c.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.Author = author.String
		c.CreatedAt = parseTimestamp(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (ts *TargetStore) loadColumns(ctx context.Context) (model.ColumnCatalog, error) {
	rows, err := ts.db.QueryContext(ctx, `
	SELECT name, first_seen, last_seen, guessed, samples_json
	FROM columns
	WHERE target = ?
	ORDER BY position`, ts.target)
	if err != nil {
		return model.ColumnCatalog{}, fmt.Errorf("failed to load columns: %w", err)
	}
	defer rows.Close()

	var catalog model.ColumnCatalog
	for rows.Next() {
		var (
			col                 model.ColumnInfo
			firstSeen, lastSeen string
			samples             sql.NullString
		)
		if err := rows.Scan(&col.Name, &firstSeen, &lastSeen, &col.Guessed, &samples); err != nil {
			return model.ColumnCatalog{}, fmt.Errorf("failed to scan column: %w", err)
		}
		col.FirstSeen = parseTimestamp(firstSeen)
		col.LastSeen = parseTimestamp(lastSeen)
		if samples.Valid && samples.String != "" {
			if err := json.Unmarshal([]byte(samples.String), &col.Samples); err != nil {
				col.Samples = nil
			}
		}
		catalog.Columns = append(catalog.Columns, col)
	}
	return catalog, rows.Err()
}

func upsertFindings(ctx context.Context, tx *sql.Tx, target string, fs []model.Finding) error {
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO findings (id, target, row_identity, column_name, status, first_seen_run, last_seen_run, table_name, row_label, raw_value, comment, ai_note)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		last_seen_run = excluded.last_seen_run,
		table_name = excluded.table_name,
		row_label = excluded.row_label,
		raw_value = excluded.raw_value,
		comment = excluded.comment,
		ai_note = excluded.ai_note`)
	if err != nil {
		return fmt.Errorf("failed to prepare finding upsert: %w", err)
	}
	defer stmt.Close()

	for _, f := range fs {
		_, err := stmt.ExecContext(ctx,
			f.ID, target, f.RowIdentity, f.ColumnName, string(f.Status),
			formatTimestamp(f.FirstSeenRun), formatTimestamp(f.LastSeenRun),
			f.Table, f.RowLabel, f.RawValue, f.Comment, f.AINote)
		if err != nil {
			return fmt.Errorf("failed to save finding %s: %w", f.ID, err)
		}
	}
	return nil
}

func upsertColumns(ctx context.Context, tx *sql.Tx, target string, catalog model.ColumnCatalog) error {
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO columns (target, position, name, first_seen, last_seen, guessed, samples_json)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(target, name) DO UPDATE SET
		last_seen = excluded.last_seen,
		samples_json = excluded.samples_json`)
	if err != nil {
		return fmt.Errorf("failed to prepare column upsert: %w", err)
	}
	defer stmt.Close()

	for i, col := range catalog.Columns {
		samples, err := json.Marshal(col.Samples)
		if err != nil {
			return fmt.Errorf("failed to serialize samples: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, target, i, col.Name,
			formatTimestamp(col.FirstSeen), formatTimestamp(col.LastSeen), col.Guessed, string(samples)); err != nil {
			return fmt.Errorf("failed to save column %s: %w", col.Name, err)
		}
	}
	return nil
}

// storedTimestamp is RFC 3339 in UTC with a fixed nine-digit fraction.
// Every stored value has the same width, so lexical order in SQL matches
// chronological order.
const storedTimestamp = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(storedTimestamp)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	storedTimestamp,           // written by formatTimestamp
	time.RFC3339Nano,          // older rows with trimmed fractions
	time.RFC3339,              // Full RFC3339 format
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
