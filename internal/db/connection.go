package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/rs/zerolog/log"
)

// Driver names accepted by Config.Driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrNoRows is returned by Row.Scan when the query matched nothing,
// whichever driver ran it.
var ErrNoRows = errors.New("no rows in result set")

// Config holds database configuration
type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Path is the sqlite database file.
	Path     string
	MaxConns int32
}

// DSN renders the Postgres connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// URL renders the Postgres connection URL with the given scheme.
func (c Config) URL(scheme string) string {
	return fmt.Sprintf("%s://%s:%s@%s:%d/%s?sslmode=%s",
		scheme, c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// Dialect selects driver-specific SQL details.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Placeholder returns the squirrel placeholder format for the dialect.
func (d Dialect) Placeholder() squirrel.PlaceholderFormat {
	if d == DialectPostgres {
		return squirrel.Dollar
	}
	return squirrel.Question
}

// Rebind rewrites ? placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	rebound, err := squirrel.Dollar.ReplacePlaceholders(query)
	if err != nil {
		return query
	}
	return rebound
}

// Rows is a result cursor. Close must be called when iteration stops early.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Row is a single-row result.
type Row interface {
	Scan(dest ...any) error
}

// DB is the store surface the repositories use. Queries take placeholders in
// the connection's dialect.
type DB interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Dialect() Dialect
}

type txDB interface {
	DB
	commit(ctx context.Context) error
	rollback(ctx context.Context) error
}

type beginner interface {
	begin(ctx context.Context) (txDB, error)
	close()
}

// Connection wraps the database connection pool
type Connection struct {
	DB
	impl beginner
}

// NewConnection creates a new database connection
func NewConnection(ctx context.Context, config Config) (*Connection, error) {
	switch config.Driver {
	case "", DriverPostgres:
		pg, err := newPostgres(ctx, config)
		if err != nil {
			return nil, err
		}
		return &Connection{DB: pg, impl: pg}, nil
	case DriverSQLite:
		lite, err := newSQLite(ctx, config.Path)
		if err != nil {
			return nil, err
		}
		return &Connection{DB: lite, impl: lite}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}
}

// Close closes the database connection pool
func (c *Connection) Close() {
	if c.impl != nil {
		c.impl.close()
	}
}

// WithTx executes a function within a database transaction
func (c *Connection) WithTx(ctx context.Context, fn func(DB) error) error {
	tx, err := c.impl.begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if err := tx.rollback(ctx); err != nil {
				log.Error().Err(err).Msg("failed to rollback transaction")
			}
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.rollback(ctx); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DefaultConfig returns a default database configuration
func DefaultConfig() Config {
	return Config{
		Driver:   DriverPostgres,
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "admin",
		DBName:   "obsquery",
		SSLMode:  "disable",
		Path:     "obsquery.db",
		MaxConns: 5,
	}
}

// pool timings for the Postgres driver
const (
	maxConnLifetime   = 30 * time.Minute
	maxConnIdleTime   = 5 * time.Minute
	healthCheckPeriod = time.Minute
)
