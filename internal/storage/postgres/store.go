package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skylarbarrera/whim/internal/store"
	"github.com/skylarbarrera/whim/internal/storage/postgres/sqlcgen"
)

// Store implements store.Store against PostgreSQL via pgxpool and the
// sqlcgen query set.
type Store struct {
	pool    *pgxpool.Pool
	queries *sqlcgen.Queries
}

var _ store.Store = (*Store)(nil)

// NewStore constructs a Store over an already-configured pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, queries: sqlcgen.New(pool)}
}

// Pool exposes the underlying connection pool for health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// withTx runs fn inside a transaction, committing on nil error and
// rolling back otherwise. Mirrors the teacher's executeInTransaction
// helper (internal/infrastructure/persistence/postgres/store.go).
func (s *Store) withTx(ctx context.Context, op string, fn func(q *sqlcgen.Queries) error) (err error) {
	start := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction (%s): %w", op, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				slog.ErrorContext(ctx, "transaction rollback failed", "op", op, "original_error", err, "rollback_error", rbErr)
			}
			return
		}
		err = tx.Commit(ctx)
		if err == nil {
			slog.DebugContext(ctx, "transaction committed", "op", op, "duration", time.Since(start))
		}
	}()

	err = fn(s.queries.WithTx(tx))
	return err
}
