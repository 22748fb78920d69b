package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type PgChatStore struct {
	conn *sql.DB
}

func NewPgChatStore(dsn string) (*PgChatStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &PgChatStore{conn: db}, nil
}

// DB exposes the underlying handle, used to run migrations.
func (db *PgChatStore) DB() *sql.DB {
	return db.conn
}

func (db *PgChatStore) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *PgChatStore) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func isPqError(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}
