package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nhle/notafiscal/internal/items"
	"github.com/nhle/notafiscal/internal/model"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	log *zap.SugaredLogger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string, log *zap.SugaredLogger) (*SQLiteStore, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps ":memory:" databases alive across queries
	// and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, log: log.With("db", dbPath)}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type runRow struct {
	ID         string `db:"id"`
	Kind       string `db:"kind"`
	StartedAt  string `db:"started_at"`
	FinishedAt string `db:"finished_at"`
	Scanned    int    `db:"scanned"`
	Matched    int    `db:"matched"`
	Succeeded  int    `db:"succeeded"`
	Skipped    int    `db:"skipped"`
	Failed     int    `db:"failed"`
	Cancelled  int    `db:"cancelled"`
	Error      string `db:"error"`
}

func (r runRow) toRun() Run {
	return Run{
		ID:         r.ID,
		Kind:       RunKind(r.Kind),
		StartedAt:  parseTime(r.StartedAt),
		FinishedAt: parseTime(r.FinishedAt),
		Scanned:    r.Scanned,
		Matched:    r.Matched,
		Succeeded:  r.Succeeded,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		Cancelled:  r.Cancelled != 0,
		Error:      r.Error,
	}
}

const runColumns = `id, kind, started_at, finished_at,
	scanned, matched, succeeded, skipped, failed, cancelled, error`

// RecordRun inserts or replaces run. A run without an ID is assigned one.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	const query = `
		INSERT OR REPLACE INTO runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		run.ID, string(run.Kind),
		formatTime(run.StartedAt), formatTime(run.FinishedAt),
		run.Scanned, run.Matched, run.Succeeded, run.Skipped, run.Failed,
		boolToInt(run.Cancelled), run.Error,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}

	s.log.Debugw("run recorded", "id", run.ID, "kind", run.Kind)
	return nil
}

// Runs returns the most recent runs first. A limit <= 0 returns all runs.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}

	var rows []runRow
	query := `SELECT ` + runColumns + ` FROM runs
		ORDER BY started_at DESC, rowid DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}

	runs := make([]Run, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, r.toRun())
	}
	return runs, nil
}

// SaveMatches stores the attachments found by the search run runID, in
// order. The run must have been recorded first.
func (s *SQLiteStore) SaveMatches(
	ctx context.Context, runID string, matches []model.AttachmentMatch,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Saving twice for one run replaces the earlier list.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM attachment_matches WHERE run_id = ?", runID,
	); err != nil {
		return fmt.Errorf("clearing matches of run %s: %w", runID, err)
	}

	const query = `
		INSERT INTO attachment_matches (
			id, run_id, position, uid, date, sender, subject, filename, kind
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing match insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range matches {
		_, err := stmt.ExecContext(ctx,
			uuid.New().String(), runID, i,
			m.UID, m.Date, m.Sender, m.Subject, m.Filename, string(m.Kind),
		)
		if err != nil {
			return fmt.Errorf("inserting match %s/%s: %w", m.UID, m.Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing matches: %w", err)
	}
	return nil
}

// LatestMatches returns the most recent search run and its matches. It
// returns a nil run when no search was recorded yet.
func (s *SQLiteStore) LatestMatches(
	ctx context.Context,
) (*Run, []model.AttachmentMatch, error) {
	var row runRow
	query := `SELECT ` + runColumns + ` FROM runs WHERE kind = ?
		ORDER BY started_at DESC, rowid DESC LIMIT 1`
	err := s.db.GetContext(ctx, &row, query, string(RunSearch))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("querying latest search: %w", err)
	}

	var matches []model.AttachmentMatch
	err = s.db.SelectContext(ctx, &matches, `
		SELECT uid, date, sender, subject, filename, kind
		FROM attachment_matches WHERE run_id = ? ORDER BY position`, row.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("querying matches of run %s: %w", row.ID, err)
	}

	run := row.toRun()
	return &run, matches, nil
}

// SaveItems appends items that are not already stored, using the same
// duplicate key as the in-memory dedup. It returns the number of items
// added.
func (s *SQLiteStore) SaveItems(ctx context.Context, lineItems []model.LineItem) (int, error) {
	if len(lineItems) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR IGNORE INTO line_items (
			id, document, description, quantity, unit_value, total_value,
			dedup_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("preparing item insert: %w", err)
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	added := 0
	for _, it := range lineItems {
		res, err := stmt.ExecContext(ctx,
			uuid.New().String(), it.DocumentLabel, it.Description,
			it.Quantity, it.UnitValue, it.TotalValue,
			items.KeyOf(it).String(), now,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting item from %s: %w", it.DocumentLabel, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("reading affected rows: %w", err)
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing items: %w", err)
	}

	s.log.Debugw("items saved", "added", added, "duplicates", len(lineItems)-added)
	return added, nil
}

// Items returns every stored line item in insertion order.
func (s *SQLiteStore) Items(ctx context.Context) ([]model.LineItem, error) {
	var out []model.LineItem
	err := s.db.SelectContext(ctx, &out, `
		SELECT document, description, quantity, unit_value, total_value
		FROM line_items ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	return out, nil
}

// ClearItems deletes every stored line item and returns how many were
// removed.
func (s *SQLiteStore) ClearItems(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM line_items")
	if err != nil {
		return 0, fmt.Errorf("clearing items: %w", err)
	}
	return res.RowsAffected()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
