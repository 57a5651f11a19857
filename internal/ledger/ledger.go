// Package ledger persists comparison outcomes across runs in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Pragmas applied to every connection pool.
const (
	busyTimeoutMS = 10_000
	memoryPath    = ":memory:"
)

const schema = `
CREATE TABLE IF NOT EXISTS comparisons (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT    NOT NULL,
	variant          TEXT    NOT NULL,
	status           TEXT    NOT NULL,
	reason           TEXT    NOT NULL DEFAULT '',
	diff_pixels      INTEGER NOT NULL DEFAULT 0,
	total_pixels     INTEGER NOT NULL DEFAULT 0,
	diff_percent     REAL    NOT NULL DEFAULT 0,
	max_diff_percent REAL    NOT NULL DEFAULT 0,
	actual_path      TEXT    NOT NULL DEFAULT '',
	diff_path        TEXT    NOT NULL DEFAULT '',
	error            TEXT    NOT NULL DEFAULT '',
	trace_id         TEXT    NOT NULL DEFAULT '',
	duration_ms      INTEGER NOT NULL DEFAULT 0,
	at_ms            INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_comparisons_key ON comparisons(name, variant, at_ms);
CREATE INDEX IF NOT EXISTS idx_comparisons_at ON comparisons(at_ms);
`

// Record is one persisted comparison outcome.
type Record struct {
	ID             int64         `json:"id"`
	Name           string        `json:"name"`
	Variant        string        `json:"variant"`
	Status         string        `json:"status"`
	Reason         string        `json:"reason,omitempty"`
	DiffPixels     int           `json:"diff_pixels"`
	TotalPixels    int           `json:"total_pixels"`
	DiffPercent    float64       `json:"diff_percent"`
	MaxDiffPercent float64       `json:"max_diff_percent"`
	ActualPath     string        `json:"actual_path,omitempty"`
	DiffPath       string        `json:"diff_path,omitempty"`
	Error          string        `json:"error,omitempty"`
	TraceID        string        `json:"trace_id,omitempty"`
	Duration       time.Duration `json:"duration_ns"`
	At             time.Time     `json:"at"`
}

// Ledger is a SQLite-backed outcome log.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at path. ":memory:" gives a
// private in-memory ledger.
func Open(path string) (*Ledger, error) {
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ledger: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	if path == memoryPath {
		// each connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("ledger: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// InsertBatch writes records in one transaction and returns how many were stored.
func (l *Ledger) InsertBatch(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ledger: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO comparisons
		(name, variant, status, reason, diff_pixels, total_pixels, diff_percent, max_diff_percent,
		 actual_path, diff_path, error, trace_id, duration_ms, at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("ledger: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if r.At.IsZero() {
			r.At = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			r.Name, r.Variant, r.Status, r.Reason, r.DiffPixels, r.TotalPixels, r.DiffPercent, r.MaxDiffPercent,
			r.ActualPath, r.DiffPath, r.Error, r.TraceID, r.Duration.Milliseconds(), r.At.UnixMilli(),
		); err != nil {
			return 0, fmt.Errorf("ledger: insert %s: %w", r.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ledger: commit: %w", err)
	}
	return len(records), nil
}

const selectColumns = `SELECT id, name, variant, status, reason, diff_pixels, total_pixels, diff_percent,
	max_diff_percent, actual_path, diff_path, error, trace_id, duration_ms, at_ms FROM comparisons`

// Recent returns the newest records first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Record, error) {
	return l.query(ctx, selectColumns+` ORDER BY at_ms DESC, id DESC LIMIT ?`, limit)
}

// ForKey returns the newest records for one baseline key.
func (l *Ledger) ForKey(ctx context.Context, name, variant string, limit int) ([]Record, error) {
	return l.query(ctx, selectColumns+` WHERE name = ? AND variant = ? ORDER BY at_ms DESC, id DESC LIMIT ?`,
		name, variant, limit)
}

// Counts tallies records by status.
func (l *Ledger) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM comparisons GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ledger: counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("ledger: scan counts: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Prune deletes records older than cutoff.
func (l *Ledger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM comparisons WHERE at_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("ledger: prune: %w", err)
	}
	return res.RowsAffected()
}

func (l *Ledger) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	if n := args[len(args)-1].(int); n <= 0 {
		args[len(args)-1] = -1 // no limit
	}
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var durMS, atMS int64
		if err := rows.Scan(&r.ID, &r.Name, &r.Variant, &r.Status, &r.Reason, &r.DiffPixels, &r.TotalPixels,
			&r.DiffPercent, &r.MaxDiffPercent, &r.ActualPath, &r.DiffPath, &r.Error, &r.TraceID, &durMS, &atMS); err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		r.Duration = time.Duration(durMS) * time.Millisecond
		r.At = time.UnixMilli(atMS)
		out = append(out, r)
	}
	return out, rows.Err()
}
