package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/pin-ingest/internal/model"
	"github.com/sells-group/pin-ingest/internal/resilience"
	"github.com/sells-group/pin-ingest/internal/submit"
)

// SQLiteStore keeps pins in a local SQLite file for offline runs.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if strings.Contains(dsn, ":memory:") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// sqliteSchemaVersion is stored in PRAGMA user_version.
const sqliteSchemaVersion = 1

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS pins (
	id                TEXT PRIMARY KEY,
	created_by        TEXT NOT NULL DEFAULT '',
	formatted_address TEXT NOT NULL,
	unit_number       TEXT NOT NULL DEFAULT '',
	street_number     TEXT NOT NULL DEFAULT '',
	street_name       TEXT NOT NULL DEFAULT '',
	city              TEXT NOT NULL DEFAULT '',
	province          TEXT NOT NULL DEFAULT '',
	postal_code       TEXT NOT NULL DEFAULT '',
	contact_name      TEXT NOT NULL DEFAULT '',
	contact_email     TEXT NOT NULL DEFAULT '',
	contact_phone     TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'pending',
	source_file       TEXT NOT NULL DEFAULT '',
	source_row        INTEGER NOT NULL DEFAULT 0,
	latitude          REAL,
	longitude         REAL,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_pins_status ON pins(status);

CREATE TABLE IF NOT EXISTS dead_letters (
	id             TEXT PRIMARY KEY,
	sink           TEXT NOT NULL,
	drafts         TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	created_at     DATETIME NOT NULL,
	last_failed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dead_letters_error_type ON dead_letters(error_type);
`

func (s *SQLiteStore) Migrate(ctx context.Context) ([]string, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return nil, eris.Wrap(err, "sqlite: read user_version")
	}
	if version >= sqliteSchemaVersion {
		return nil, nil
	}
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return nil, eris.Wrap(err, "sqlite: migrate")
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA user_version = 1"); err != nil {
		return nil, eris.Wrap(err, "sqlite: set user_version")
	}
	return []string{"sqlite schema v1"}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// BulkCreate inserts the chunk in one transaction.
func (s *SQLiteStore) BulkCreate(ctx context.Context, drafts []model.PinDraft) (submit.BulkResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return submit.BulkResult{}, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO pins (`+strings.Join(pinColumns, ", ")+`, latitude, longitude)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return submit.BulkResult{}, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, d := range drafts {
		var lat, lng sql.NullFloat64
		if !d.Coordinate.IsZero() {
			lat = sql.NullFloat64{Float64: d.Coordinate.Latitude, Valid: true}
			lng = sql.NullFloat64{Float64: d.Coordinate.Longitude, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, append(pinRow(d), lat, lng)...); err != nil {
			return submit.BulkResult{}, eris.Wrapf(err, "sqlite: insert draft %s", d.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return submit.BulkResult{}, eris.Wrap(err, "sqlite: commit pins")
	}
	return submit.BulkResult{Created: len(drafts)}, nil
}

func (s *SQLiteStore) CountPins(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pins`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count pins")
}

// Dead letters

func (s *SQLiteStore) SaveDeadLetter(ctx context.Context, e resilience.DLQEntry) error {
	draftsJSON, err := json.Marshal(e.Drafts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dead letter drafts")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letters
		 (id, sink, drafts, error, error_type, retry_count, max_retries, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type,
		   retry_count = excluded.retry_count, last_failed_at = excluded.last_failed_at`,
		e.ID, e.Sink, string(draftsJSON), e.Error, e.ErrorType,
		e.RetryCount, e.MaxRetries, e.CreatedAt, e.LastFailedAt,
	)
	return eris.Wrap(err, "sqlite: save dead letter")
}

func (s *SQLiteStore) ListDeadLetters(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters WHERE retry_count < max_retries`
	var args []any
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY created_at ASC LIMIT ?`
	args = append(args, listLimit(filter))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dead letters")
	}
	defer rows.Close() //nolint:errcheck

	var entries []resilience.DLQEntry
	for rows.Next() {
		e, err := scanSQLiteDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list dead letters iterate")
}

func (s *SQLiteStore) GetDeadLetter(ctx context.Context, id string) (*resilience.DLQEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deadLetterColumns+` FROM dead_letters WHERE id = ?`, id)
	e, err := scanSQLiteDeadLetter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("sqlite: dead letter not found: %s", id)
	}
	return e, err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteDeadLetter(row scannable) (*resilience.DLQEntry, error) {
	var e resilience.DLQEntry
	var draftsJSON string
	if err := row.Scan(&e.ID, &e.Sink, &draftsJSON, &e.Error, &e.ErrorType,
		&e.RetryCount, &e.MaxRetries, &e.CreatedAt, &e.LastFailedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan dead letter")
	}
	if err := json.Unmarshal([]byte(draftsJSON), &e.Drafts); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal dead letter drafts")
	}
	return &e, nil
}

func (s *SQLiteStore) RecordReplay(ctx context.Context, id string, replayErr error) error {
	var res sql.Result
	var err error
	if replayErr == nil {
		res, err = s.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = ?`, id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE dead_letters
			 SET retry_count = retry_count + 1, error = ?, error_type = ?, last_failed_at = datetime('now')
			 WHERE id = ?`,
			replayErr.Error(), resilience.ClassifyError(replayErr), id,
		)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: record replay %s", id)
	}
	return checkRowsAffected(res, "dead letter", id)
}

func (s *SQLiteStore) CountDeadLetters(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count dead letters")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s not found: %s", entity, id)
	}
	return nil
}
