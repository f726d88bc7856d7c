package infra

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLExecutor is the query surface used by the Postgres repositories and the
// settings store.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var errMissingMarker = errors.New("sql marker missing or invalid")

// TxRunner is implemented by executors that can group statements into one
// transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(SQLExecutor) error) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// SQLRunner executes marked queries on a pool. Every statement must start
// with a `--sql <uuid>` line; the uuid is logged in place of the statement.
type SQLRunner struct {
	Pool   *pgxpool.Pool
	Logger zerolog.Logger

	tx pgx.Tx
}

func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{Pool: pool, Logger: logger}
}

func (r *SQLRunner) conn() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.Pool
}

// InTx runs fn with an executor bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise. Calls
// made on a runner that is already inside a transaction join it.
func (r *SQLRunner) InTx(ctx context.Context, fn func(SQLExecutor) error) error {
	if r.tx != nil {
		return fn(r)
	}
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&SQLRunner{Pool: r.Pool, Logger: r.Logger, tx: tx}); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			r.Logger.Error().Err(rbErr).Msg("sql: rollback failed")
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, trimmed, err := extractMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	started := time.Now()
	tag, err := r.conn().Exec(ctx, trimmed, args...)
	r.done(marker, "exec", started, err).Int64("rows", tag.RowsAffected()).Msg("sql: statement finished")
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, trimmed, err := extractMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	return loggingRow{row: r.conn().QueryRow(ctx, trimmed, args...), runner: r, marker: marker, started: time.Now()}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, trimmed, err := extractMarker(query)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	rows, err := r.conn().Query(ctx, trimmed, args...)
	if err != nil {
		r.done(marker, "query", started, err).Msg("sql: statement finished")
		return nil, err
	}
	return &loggingRows{Rows: rows, runner: r, marker: marker, started: started}, nil
}

// done starts the log event of a finished statement. Errors other than "no
// rows" are logged at error level, everything else at debug.
func (r *SQLRunner) done(marker, op string, started time.Time, err error) *zerolog.Event {
	event := r.Logger.Debug()
	if err != nil && !IsNoRows(err) {
		event = r.Logger.Error().Err(err)
	}
	return event.Str("sql", marker).Str("op", op).Dur("elapsed", time.Since(started))
}

type loggingRow struct {
	row     pgx.Row
	runner  *SQLRunner
	marker  string
	started time.Time
}

func (l loggingRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	l.runner.done(l.marker, "query_row", l.started, err).Bool("found", err == nil).Msg("sql: statement finished")
	return err
}

type loggingRows struct {
	pgx.Rows
	runner  *SQLRunner
	marker  string
	started time.Time
	count   int
	closed  bool
}

func (l *loggingRows) Next() bool {
	if l.Rows.Next() {
		l.count++
		return true
	}
	return false
}

func (l *loggingRows) Close() {
	l.Rows.Close()
	if l.closed {
		return
	}
	l.closed = true
	l.runner.done(l.marker, "query", l.started, l.Rows.Err()).Int("rows", l.count).Msg("sql: statement finished")
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(dest ...any) error {
	return e.err
}

// extractMarker splits the marker uuid from the statement body.
func extractMarker(query string) (string, string, error) {
	trimmed := strings.TrimSpace(query)
	head, body, _ := strings.Cut(trimmed, "\n")
	head = strings.TrimSpace(head)
	if !markerRegexp.MatchString(head) {
		return "", "", errMissingMarker
	}
	return strings.TrimPrefix(head, "--sql "), body, nil
}

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var (
	_ SQLExecutor = (*SQLRunner)(nil)
	_ TxRunner    = (*SQLRunner)(nil)
)
