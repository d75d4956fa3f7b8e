package snapshot

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/flagsync/pkg/pg"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate creates the flag_snapshots table.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, log *slog.Logger) error {
	return pg.Migrate(ctx, pool, cfg, log, migrations, "migrations")
}

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	deactivateQuery = `UPDATE flag_snapshots SET is_active = FALSE WHERE namespace = $1 AND is_active`

	insertQuery = `INSERT INTO flag_snapshots (namespace, version, etag, created_at, is_active, json)
VALUES ($1, $2, $3, $4, TRUE, $5) RETURNING id`

	gcQuery = `DELETE FROM flag_snapshots WHERE namespace = $1 AND NOT is_active AND id NOT IN (
SELECT id FROM flag_snapshots WHERE namespace = $1 ORDER BY is_active DESC, created_at DESC, id DESC LIMIT $2)`

	selectColumns = `SELECT id, namespace, COALESCE(version, ''), COALESCE(etag, ''), created_at, is_active, json FROM flag_snapshots`

	currentQuery = selectColumns + ` WHERE namespace = $1 AND is_active LIMIT 1`

	historyQuery = selectColumns + ` WHERE namespace = $1 ORDER BY created_at DESC, id DESC`
)

// PostgresStore keeps snapshots in the flag_snapshots table. Replace runs as a
// single transaction, and a partial unique index guarantees one active row per
// namespace even across processes.
type PostgresStore struct {
	db   DB
	opts options
}

func NewPostgresStore(db DB, opts ...Option) *PostgresStore {
	return &PostgresStore{db: db, opts: newOptions(opts)}
}

func (p *PostgresStore) Current(ctx context.Context, namespace string) (*ConfigSnapshot, error) {
	s, err := scanSnapshot(p.db.QueryRow(ctx, currentQuery, namespaceOrDefault(namespace)))
	if pg.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	return &s, nil
}

func (p *PostgresStore) Replace(ctx context.Context, s ConfigSnapshot) (id int64, err error) {
	s, err = prepare(s, p.opts)
	if err != nil {
		return 0, errors.Join(ErrReplaceFailed, err)
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, errors.Join(ErrReplaceFailed, err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			p.opts.logger.ErrorContext(ctx, "snapshot rollback failed",
				slog.String("namespace", s.Namespace),
				slog.String("error", rbErr.Error()),
			)
		}
		err = errors.Join(ErrReplaceFailed, err)
	}()

	if _, err = tx.Exec(ctx, deactivateQuery, s.Namespace); err != nil {
		return 0, fmt.Errorf("deactivate: %w", err)
	}
	if err = tx.QueryRow(ctx, insertQuery, s.Namespace, s.Version, s.ETag, s.CreatedAt, s.JSON).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}

	var tag pgconn.CommandTag
	if tag, err = tx.Exec(ctx, gcQuery, s.Namespace, p.opts.retention); err != nil {
		return 0, fmt.Errorf("gc: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	p.opts.logger.DebugContext(ctx, "snapshot replaced",
		slog.String("namespace", s.Namespace),
		slog.Int64("snapshot_id", id),
		slog.Int64("collected", tag.RowsAffected()),
	)
	return id, nil
}

func (p *PostgresStore) History(ctx context.Context, namespace string) ([]ConfigSnapshot, error) {
	rows, err := p.db.Query(ctx, historyQuery, namespaceOrDefault(namespace))
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []ConfigSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, errors.Join(ErrQueryFailed, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	return out, nil
}

func scanSnapshot(row pgx.Row) (ConfigSnapshot, error) {
	var (
		s             ConfigSnapshot
		version, etag string
		createdAt     time.Time
	)
	if err := row.Scan(&s.ID, &s.Namespace, &version, &etag, &createdAt, &s.IsActive, &s.JSON); err != nil {
		return ConfigSnapshot{}, err
	}
	s.CreatedAt = createdAt.UTC()
	if version != "" {
		s.Version = &version
	}
	if etag != "" {
		s.ETag = &etag
	}
	return s, nil
}
