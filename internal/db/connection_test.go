package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *Connection {
	t.Helper()
	conn, err := NewConnection(context.Background(), Config{
		Driver: DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

func TestDialect_Rebind(t *testing.T) {
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", DialectPostgres.Rebind("SELECT 1 WHERE a = ? AND b = ?"))
	assert.Equal(t, "SELECT 1 WHERE a = ?", DialectSQLite.Rebind("SELECT 1 WHERE a = ?"))
}

func TestNewConnection_UnknownDriver(t *testing.T) {
	_, err := NewConnection(context.Background(), Config{Driver: "oracle"})
	assert.Error(t, err)
}

func TestMigrate_SQLiteIsRepeatable(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)

	require.NoError(t, Migrate(ctx, conn, Config{}))
	require.NoError(t, Migrate(ctx, conn, Config{}))

	var count int
	err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM query_records").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestQueryRow_NoRowsIsDriverNeutral(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	require.NoError(t, Migrate(ctx, conn, Config{}))

	var id int64
	err := conn.QueryRow(ctx, "SELECT id FROM users WHERE login = ?", "nobody").Scan(&id)
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	require.NoError(t, Migrate(ctx, conn, Config{}))

	err := conn.WithTx(ctx, func(tx DB) error {
		if _, err := tx.Exec(ctx, "INSERT INTO users (login, name, created_at, updated_at) VALUES (?, ?, 0, 0)", "mary", "Mary"); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	var count int
	require.NoError(t, conn.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 0, count)

	err = conn.WithTx(ctx, func(tx DB) error {
		_, err := tx.Exec(ctx, "INSERT INTO users (login, name, created_at, updated_at) VALUES (?, ?, 0, 0)", "mary", "Mary")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, conn.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 1, count)
}
