package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type sqlDB struct {
	q sqlQuerier
}

func (s sqlDB) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (s sqlDB) QueryRow(ctx context.Context, query string, args ...any) Row {
	return sqlRow{row: s.q.QueryRowContext(ctx, query, args...)}
}

func (s sqlDB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (sqlDB) Dialect() Dialect {
	return DialectSQLite
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}

type sqlRow struct {
	row *sql.Row
}

func (r sqlRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}
	return err
}

// sqliteDB is the embedded modernc.org/sqlite DB.
type sqliteDB struct {
	sqlDB
	SQL *sql.DB
}

func newSQLite(ctx context.Context, path string) (*sqliteDB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}
	conn, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer connection for SQLite
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &sqliteDB{sqlDB: sqlDB{q: conn}, SQL: conn}, nil
}

func (s *sqliteDB) begin(ctx context.Context) (txDB, error) {
	tx, err := s.SQL.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return sqlTx{sqlDB: sqlDB{q: tx}, tx: tx}, nil
}

func (s *sqliteDB) close() {
	if s.SQL != nil {
		_ = s.SQL.Close()
	}
}

type sqlTx struct {
	sqlDB
	tx *sql.Tx
}

func (t sqlTx) commit(context.Context) error   { return t.tx.Commit() }
func (t sqlTx) rollback(context.Context) error { return t.tx.Rollback() }
