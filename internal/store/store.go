// Package store is the persistence glue of spec.md §3: it maps the
// entities in internal/model onto Postgres rows via pgx, with no ORM in
// between. Every write the reconciler performs happens inside one
// *pgx.Tx, matching spec.md §5 ("every write occurs inside one
// transaction per request").
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ErrNotFound is returned by lookup helpers when no row matches.
var ErrNotFound = errors.New("store: not found")

// Store wraps a connection pool and exposes per-entity query helpers
// defined in the other files of this package.
type Store struct {
	Pool *pgxpool.Pool
}

// Open connects to databaseURL and verifies connectivity with a ping.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.Connect(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.Pool.Close()
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting entity
// helpers in this package run either against the pool directly or inside
// a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// WithTx runs fn inside a serializable transaction, retrying once on a
// Postgres serialization_failure (SQLSTATE 40001), per spec.md §5's
// "implementations should... retry on serialization failure".
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	const maxAttempts = 2
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isSerializationFailure(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "40001"
	}
	return false
}
