// Package postgres implements storage.Store on gorm and PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/fisk-sga/campus-feedback/backend/internal/storage"
)

// PostgreSQL error codes the store translates into storage sentinels.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
)

type Store struct {
	*querier
}

var _ storage.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{querier: &querier{db: db}}
}

type querier struct {
	db *gorm.DB
}

func (q *querier) conn(ctx context.Context) *gorm.DB {
	return q.db.WithContext(ctx)
}

// Transaction opens a transaction, or a savepoint when q is already inside
// one.
func (q *querier) Transaction(ctx context.Context, fn func(storage.Querier) error) error {
	return q.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&querier{db: tx})
	})
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// translate maps driver errors onto storage sentinels, keeping the original
// error for anything it does not recognise.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	switch pgCode(err) {
	case codeUniqueViolation:
		return storage.ErrDuplicateKey
	case codeForeignKeyViolation, codeInvalidText:
		return storage.ErrNotFound
	}
	return err
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
