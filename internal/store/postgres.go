package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pin-ingest/internal/db"
	"github.com/sells-group/pin-ingest/internal/model"
	"github.com/sells-group/pin-ingest/internal/resilience"
	"github.com/sells-group/pin-ingest/internal/submit"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// PostgresStore writes pins to a PostGIS table with COPY.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) ([]string, error) {
	applied, err := db.Migrate(ctx, s.pool, postgresMigrations, "migrations/postgres")
	return applied, eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var pinsTable = pgx.Identifier{"pins"}

// BulkCreate copies the chunk into pins in one transaction: either every
// draft is stored or none is.
func (s *PostgresStore) BulkCreate(ctx context.Context, drafts []model.PinDraft) (submit.BulkResult, error) {
	rows := make([][]any, 0, len(drafts))
	for _, d := range drafts {
		point, err := db.EncodePoint(d.Coordinate)
		if err != nil {
			return submit.BulkResult{}, eris.Wrapf(err, "postgres: draft %s", d.ID)
		}
		rows = append(rows, append(pinRow(d), point))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return submit.BulkResult{}, eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	n, err := db.CopyFrom(ctx, tx, pinsTable, append(append([]string(nil), pinColumns...), "geom"), rows)
	if err != nil {
		return submit.BulkResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return submit.BulkResult{}, eris.Wrap(err, "postgres: commit pins")
	}
	return submit.BulkResult{Created: int(n)}, nil
}

func (s *PostgresStore) CountPins(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pins`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count pins")
}

// Dead letters

func (s *PostgresStore) SaveDeadLetter(ctx context.Context, e resilience.DLQEntry) error {
	draftsJSON, err := json.Marshal(e.Drafts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dead letter drafts")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO dead_letters
		 (id, sink, drafts, error, error_type, retry_count, max_retries, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $4, error_type = $5, retry_count = $6, last_failed_at = $9`,
		e.ID, e.Sink, draftsJSON, e.Error, e.ErrorType,
		e.RetryCount, e.MaxRetries, e.CreatedAt, e.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: save dead letter")
}

const deadLetterColumns = `id, sink, drafts, error, error_type, retry_count, max_retries, created_at, last_failed_at`

func (s *PostgresStore) ListDeadLetters(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters WHERE retry_count < max_retries`
	var args []any
	if filter.ErrorType != "" {
		args = append(args, filter.ErrorType)
		query += fmt.Sprintf(` AND error_type = $%d`, len(args))
	}
	args = append(args, listLimit(filter))
	query += fmt.Sprintf(` ORDER BY created_at ASC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dead letters")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		e, err := scanPostgresDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list dead letters iterate")
}

func (s *PostgresStore) GetDeadLetter(ctx context.Context, id string) (*resilience.DLQEntry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+deadLetterColumns+` FROM dead_letters WHERE id = $1`, id)
	e, err := scanPostgresDeadLetter(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: dead letter not found: %s", id)
	}
	return e, err
}

func scanPostgresDeadLetter(row pgx.Row) (*resilience.DLQEntry, error) {
	var e resilience.DLQEntry
	var draftsJSON []byte
	if err := row.Scan(&e.ID, &e.Sink, &draftsJSON, &e.Error, &e.ErrorType,
		&e.RetryCount, &e.MaxRetries, &e.CreatedAt, &e.LastFailedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan dead letter")
	}
	if err := json.Unmarshal(draftsJSON, &e.Drafts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal dead letter drafts")
	}
	return &e, nil
}

func (s *PostgresStore) RecordReplay(ctx context.Context, id string, replayErr error) error {
	if replayErr == nil {
		_, err := s.pool.Exec(ctx, `DELETE FROM dead_letters WHERE id = $1`, id)
		return eris.Wrapf(err, "postgres: remove dead letter %s", id)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE dead_letters
		 SET retry_count = retry_count + 1, error = $1, error_type = $2, last_failed_at = now()
		 WHERE id = $3`,
		replayErr.Error(), resilience.ClassifyError(replayErr), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record replay %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: dead letter not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) CountDeadLetters(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count dead letters")
}
