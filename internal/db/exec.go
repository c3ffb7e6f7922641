package db

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

type rowScanner interface {
	Scan(dest ...any) error
}

type rowsScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// execer is the subset of database access the store needs, implemented once
// for database/sql and once for pgxpool.
type execer interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	queryRow(ctx context.Context, query string, args ...any) rowScanner
	query(ctx context.Context, query string, args ...any) (rowsScanner, error)
	ping(ctx context.Context) error
	close() error
}

type sqlExecer struct {
	db *sql.DB
}

func (e sqlExecer) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := e.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (e sqlExecer) queryRow(ctx context.Context, query string, args ...any) rowScanner {
	return e.db.QueryRowContext(ctx, query, args...)
}

func (e sqlExecer) query(ctx context.Context, query string, args ...any) (rowsScanner, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (e sqlExecer) ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

func (e sqlExecer) close() error {
	return e.db.Close()
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}

type pgExecer struct {
	pool *pgxpool.Pool
}

func (e pgExecer) exec(ctx context.Context, query string, args ...any) (int64, error) {
	if len(args) == 0 {
		// No rebinding so multi-statement schema scripts go through the simple protocol
		tag, err := e.pool.Exec(ctx, query)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	}
	tag, err := e.pool.Exec(ctx, rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (e pgExecer) queryRow(ctx context.Context, query string, args ...any) rowScanner {
	return e.pool.QueryRow(ctx, rebind(query), args...)
}

func (e pgExecer) query(ctx context.Context, query string, args ...any) (rowsScanner, error) {
	rows, err := e.pool.Query(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (e pgExecer) ping(ctx context.Context) error {
	return e.pool.Ping(ctx)
}

func (e pgExecer) close() error {
	e.pool.Close()
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
