package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/BigBang142/Tor-Search-MCP/internal/model"
)

// Store errors.
var (
	// ErrNoSearch is returned when no search matches the lookup.
	ErrNoSearch = errors.New("no such search in history")

	// ErrIndexOutOfRange is returned when a result index does not exist
	// within the referenced search.
	ErrIndexOutOfRange = errors.New("result index out of range")
)

// Store provides SQLite-backed search history.
//
// Design decision: We use a single database file for all searches
// rather than one per session. The fetch-by-index workflow needs the
// previous search to be findable after a restart, and relationship
// queries (which searches surfaced a URL) stay simple.
type Store struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default store options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history store at the specified directory.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, "torsearch.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("history database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite DSN: mode=rw prevents creating new files,
	// mode=rwc allows creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close() //nolint:errcheck // Open already failed
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close() //nolint:errcheck // Open already failed
		return nil, fmt.Errorf("failed to create history tables: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createTables creates the schema if it doesn't exist.
func (s *Store) createTables() error {
	schema := `
	-- One row per executed search.
	CREATE TABLE IF NOT EXISTS searches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		executed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		sources TEXT,
		elapsed_ms INTEGER,
		result_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_searches_executed ON searches(executed_at);

	-- The results of a search in display order. position is 1-based and
	-- is what fetch-by-index resolves against.
	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		search_id INTEGER NOT NULL REFERENCES searches(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		title TEXT,
		url TEXT NOT NULL,
		snippet TEXT,
		source TEXT NOT NULL,
		score REAL NOT NULL DEFAULT 0,
		UNIQUE(search_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_results_search ON results(search_id);
	CREATE INDEX IF NOT EXISTS idx_results_url ON results(url);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// SearchRecord is one stored search without its results.
type SearchRecord struct {
	// ID is the search's database identifier.
	ID int64

	// Query is the search text as executed.
	Query string

	// ExecutedAt is when the search ran.
	ExecutedAt time.Time

	// Sources lists the backends that contributed results.
	Sources []model.BackendKind

	// Elapsed is how long the search took.
	Elapsed time.Duration

	// ResultCount is the number of stored results.
	ResultCount int
}

// SaveSearch stores a completed search with its results and returns the
// search's ID. Results are numbered 1..n in the order given, which is
// the aggregated display order.
func (s *Store) SaveSearch(ctx context.Context, resp *model.Response) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	res, err := tx.ExecContext(ctx,
		`INSERT INTO searches (query, sources, elapsed_ms, result_count) VALUES (?, ?, ?, ?)`,
		resp.Query,
		joinSources(resp.Sources),
		resp.Elapsed.Milliseconds(),
		len(resp.Results),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert search: %w", err)
	}

	searchID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read search id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (search_id, position, title, url, snippet, source, score) VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // Statement dies with the tx

	for i, r := range resp.Results {
		if _, err := stmt.ExecContext(ctx, searchID, i+1, r.Title, r.URL, r.Snippet, string(r.Source), r.Score); err != nil {
			return 0, fmt.Errorf("failed to insert result %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit search: %w", err)
	}
	return searchID, nil
}

// LatestSearch returns the most recent search record, or ErrNoSearch
// when the history is empty.
func (s *Store) LatestSearch(ctx context.Context) (*SearchRecord, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, query, executed_at, sources, elapsed_ms, result_count
	FROM searches
	ORDER BY id DESC
	LIMIT 1
	`)
	return scanSearchRecord(row)
}

// GetSearch returns one search record by ID.
func (s *Store) GetSearch(ctx context.Context, id int64) (*SearchRecord, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, query, executed_at, sources, elapsed_ms, result_count
	FROM searches
	WHERE id = ?
	`, id)
	return scanSearchRecord(row)
}

// ListSearches returns the most recent searches, newest first.
func (s *Store) ListSearches(ctx context.Context, limit int) ([]SearchRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, query, executed_at, sources, elapsed_ms, result_count
	FROM searches
	ORDER BY id DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows

	var records []SearchRecord
	for rows.Next() {
		var (
			rec       SearchRecord
			executed  string
			sources   sql.NullString
			elapsedMS int64
		)
		if err := rows.Scan(&rec.ID, &rec.Query, &executed, &sources, &elapsedMS, &rec.ResultCount); err != nil {
			return nil, fmt.Errorf("failed to scan search: %w", err)
		}
		rec.ExecutedAt = parseTimestamp(executed)
		rec.Sources = splitSources(sources.String)
		rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Results returns all results of a search in display order.
func (s *Store) Results(ctx context.Context, searchID int64) ([]model.Result, error) {
	if _, err := s.GetSearch(ctx, searchID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT title, url, snippet, source, score
	FROM results
	WHERE search_id = ?
	ORDER BY position
	`, searchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows

	var results []model.Result
	for rows.Next() {
		var (
			r      model.Result
			source string
		)
		if err := rows.Scan(&r.Title, &r.URL, &r.Snippet, &source, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Source = model.BackendKind(source)
		results = append(results, r)
	}

	return results, rows.Err()
}

// ResultAt returns the result at a 1-based position within a search.
// This is the fetch-by-index lookup.
func (s *Store) ResultAt(ctx context.Context, searchID int64, position int) (*model.Result, error) {
	if position < 1 {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, position)
	}
	if _, err := s.GetSearch(ctx, searchID); err != nil {
		return nil, err
	}

	var (
		r      model.Result
		source string
	)
	err := s.db.QueryRowContext(ctx, `
	SELECT title, url, snippet, source, score
	FROM results
	WHERE search_id = ? AND position = ?
	`, searchID, position).Scan(&r.Title, &r.URL, &r.Snippet, &source, &r.Score)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, position)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	r.Source = model.BackendKind(source)
	return &r, nil
}

// ResultsAt resolves several 1-based positions within a search,
// preserving the requested order. Any unknown position fails the whole
// lookup so the caller never silently fetches the wrong page.
func (s *Store) ResultsAt(ctx context.Context, searchID int64, positions []int) ([]model.Result, error) {
	results := make([]model.Result, 0, len(positions))
	for _, pos := range positions {
		r, err := s.ResultAt(ctx, searchID, pos)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, nil
}

// Prune deletes searches older than the retention period along with
// their results. It returns the number of searches removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	// SQLite datetime modifier format.
	modifier := fmt.Sprintf("-%d seconds", int(retention.Seconds()))

	// Results go first: CASCADE only fires when foreign keys are
	// enabled, which SQLite leaves off by default.
	if _, err := s.db.ExecContext(ctx, `
	DELETE FROM results WHERE search_id IN (
		SELECT id FROM searches WHERE executed_at <= datetime('now', ?)
	)
	`, modifier); err != nil {
		return 0, fmt.Errorf("failed to prune results: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM searches WHERE executed_at <= datetime('now', ?)`, modifier)
	if err != nil {
		return 0, fmt.Errorf("failed to prune searches: %w", err)
	}
	return res.RowsAffected()
}

// scanSearchRecord scans one search row, mapping sql.ErrNoRows to
// ErrNoSearch.
func scanSearchRecord(row *sql.Row) (*SearchRecord, error) {
	var (
		rec       SearchRecord
		executed  string
		sources   sql.NullString
		elapsedMS int64
	)
	err := row.Scan(&rec.ID, &rec.Query, &executed, &sources, &elapsedMS, &rec.ResultCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSearch
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get search: %w", err)
	}

	rec.ExecutedAt = parseTimestamp(executed)
	rec.Sources = splitSources(sources.String)
	rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return &rec, nil
}

// joinSources serializes the backend list as a comma-separated string.
func joinSources(kinds []model.BackendKind) string {
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, string(k))
	}
	return strings.Join(parts, ",")
}

// splitSources is the inverse of joinSources.
func splitSources(s string) []model.BackendKind {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	kinds := make([]model.BackendKind, 0, len(parts))
	for _, p := range parts {
		kinds = append(kinds, model.BackendKind(p))
	}
	return kinds
}

// timestampFormats contains the timestamp formats that SQLite may
// return. The order matters: more specific formats come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple
// formats. SQLite may return timestamps in different formats depending
// on configuration. Returns zero time when nothing matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
