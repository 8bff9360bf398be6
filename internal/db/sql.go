package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/codegenie/apiserver/internal/apperr"
)

type dialect struct {
	name   string
	read   string
	upsert string
	insert string
}

var postgresDialect = dialect{
	name: "postgres",
	read: `SELECT body FROM documents WHERE name = $1`,
	upsert: `
		INSERT INTO documents (name, body, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
	insert: `
		INSERT INTO documents (name, body, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING`,
}

var sqliteDialect = dialect{
	name: "sqlite",
	read: `SELECT body FROM documents WHERE name = ?`,
	upsert: `
		INSERT INTO documents (name, body, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
	insert: `
		INSERT INTO documents (name, body, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO NOTHING`,
}

var mysqlDialect = dialect{
	name: "mysql",
	read: `SELECT body FROM documents WHERE name = ?`,
	upsert: `
		INSERT INTO documents (name, body, updated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE body = VALUES(body), updated_at = VALUES(updated_at)`,
	insert: `
		INSERT IGNORE INTO documents (name, body, updated_at)
		VALUES (?, ?, ?)`,
}

// SQLBackend stores collections as rows of the documents table.
type SQLBackend struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// NewPostgresBackend wraps an open Postgres handle. The schema comes from
// the migrations.
func NewPostgresBackend(conn *sql.DB) *SQLBackend {
	return &SQLBackend{db: conn, dialect: postgresDialect, now: time.Now}
}

// NewSQLiteBackend wraps an open SQLite handle.
func NewSQLiteBackend(conn *sql.DB) *SQLBackend {
	return &SQLBackend{db: conn, dialect: sqliteDialect, now: time.Now}
}

// NewMySQLBackend wraps an open MySQL handle.
func NewMySQLBackend(conn *sql.DB) *SQLBackend {
	return &SQLBackend{db: conn, dialect: mysqlDialect, now: time.Now}
}

func (b *SQLBackend) Init(ctx context.Context, name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	res, err := b.db.ExecContext(ctx, b.dialect.insert, name, string(emptyCollection), b.now().UTC())
	if err != nil {
		return false, apperr.Wrap(apperr.ErrIO, "init "+name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Wrap(apperr.ErrIO, "init "+name, err)
	}
	return n > 0, nil
}

func (b *SQLBackend) Read(ctx context.Context, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	var body string
	err := b.db.QueryRowContext(ctx, b.dialect.read, name).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", name, ErrUninitialized)
		}
		return nil, apperr.Wrap(apperr.ErrIO, "read "+name, err)
	}
	return []byte(body), nil
}

// Write upserts the payload. It is passed as a string so lib/pq does not
// send it as bytea.
func (b *SQLBackend) Write(ctx context.Context, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx, b.dialect.upsert, name, string(data), b.now().UTC()); err != nil {
		return apperr.Wrap(apperr.ErrIO, "write "+name, err)
	}
	return nil
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}
