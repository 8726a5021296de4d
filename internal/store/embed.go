package store

import (
	"context"
	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// Bootstrap applies schema.sql. It is additive (CREATE TABLE IF NOT
// EXISTS) and safe to run repeatedly; it is not a migration framework
// (spec.md Non-goals), just the one-shot DDL the admin CLI's
// `bootstrap-db` command runs against a fresh database.
func (s *Store) Bootstrap(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schemaSQL)
	return err
}
