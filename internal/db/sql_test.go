package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/codegenie/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockBackend(t *testing.T, d dialect) (*SQLBackend, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return &SQLBackend{db: conn, dialect: d, now: func() time.Time { return fixed }}, mock
}

func TestSQLBackend_ReadMissing(t *testing.T) {
	b, mock := newMockBackend(t, postgresDialect)

	mock.ExpectQuery(`SELECT body FROM documents WHERE name = \$1`).
		WithArgs(Users).
		WillReturnError(sql.ErrNoRows)

	_, err := b.Read(context.Background(), Users)
	assert.ErrorIs(t, err, ErrUninitialized)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackend_ReadWrite(t *testing.T) {
	b, mock := newMockBackend(t, postgresDialect)

	mock.ExpectExec(`INSERT INTO documents .* ON CONFLICT \(name\) DO UPDATE`).
		WithArgs(History, `[{"query":"x"}]`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT body FROM documents`).
		WithArgs(History).
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(`[{"query":"x"}]`))

	ctx := context.Background()
	require.NoError(t, b.Write(ctx, History, []byte(`[{"query":"x"}]`)))

	data, err := b.Read(ctx, History)
	require.NoError(t, err)
	assert.Equal(t, `[{"query":"x"}]`, string(data))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackend_Init(t *testing.T) {
	b, mock := newMockBackend(t, sqliteDialect)

	mock.ExpectExec(`INSERT INTO documents .* VALUES \(\?, \?, \?\)\s+ON CONFLICT \(name\) DO NOTHING`).
		WithArgs(Feedback, "[]", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`ON CONFLICT \(name\) DO NOTHING`).
		WithArgs(Feedback, "[]", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	created, err := b.Init(ctx, Feedback)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = b.Init(ctx, Feedback)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_RoundTrip(t *testing.T) {
	ctx := context.Background()
	conn, err := OpenSQLite(ctx, t.TempDir()+"/codegenie.db")
	require.NoError(t, err)

	b := NewSQLiteBackend(conn)
	defer b.Close()

	_, err = b.Read(ctx, Activity)
	assert.ErrorIs(t, err, ErrUninitialized)

	created, err := b.Init(ctx, Activity)
	require.NoError(t, err)
	assert.True(t, created)

	require.NoError(t, b.Write(ctx, Activity, []byte(`[{"user_id":"a"}]`)))
	require.NoError(t, b.Write(ctx, Activity, []byte(`[{"user_id":"b"}]`)))

	data, err := b.Read(ctx, Activity)
	require.NoError(t, err)
	assert.Equal(t, `[{"user_id":"b"}]`, string(data))
}

func TestSQLBackend_MySQLInitUsesInsertIgnore(t *testing.T) {
	b, mock := newMockBackend(t, mysqlDialect)

	mock.ExpectExec(`INSERT IGNORE INTO documents`).
		WithArgs(Users, "[]", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ON DUPLICATE KEY UPDATE`).
		WithArgs(Users, "[]", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	ctx := context.Background()
	created, err := b.Init(ctx, Users)
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, b.Write(ctx, Users, []byte("[]")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLDSN(config.MySQLConfig{Host: "db", Port: 3306, User: "cg", Password: "pw", DBName: "codegenie"})
	assert.Contains(t, dsn, "cg:pw@tcp(db:3306)/codegenie?")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestPostgresURL(t *testing.T) {
	u := PostgresURL(config.DatabaseConfig{Host: "pg", Port: 5432, User: "cg", Password: "p@ss", DBName: "codegenie", UseSSL: true})
	assert.Equal(t, "postgres://cg:p%40ss@pg:5432/codegenie?sslmode=require", u)
}
