// Package sqlcgen holds hand-written, sqlc-shaped query code: one
// params/row struct pair per statement, a DBTX interface satisfied by
// both *pgxpool.Pool and pgx.Tx, and a Queries type that can be rebound
// to a transaction via WithTx. This mirrors the generated-code idiom
// the teacher's own sqlc output follows (see
// internal/infrastructure/persistence/postgres in the reference repo),
// written by hand here because no sqlc.yaml/queries.sql pipeline ships
// with this module.
package sqlcgen

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx, and pgx.Conn: every
// Queries method is written against this interface so the same query
// code runs against the pool or against a transaction handle.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries wraps a DBTX with the typed statements the Persistence Layer
// needs.
type Queries struct {
	db DBTX
}

// New constructs Queries over db (a pool, transaction, or connection).
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx rebinds the same query set onto an open transaction so a
// caller can compose several statements into one atomic unit of work.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}
