package store

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/synocommunity/spkrepo/internal/model"
)

// FindArchitecture looks up an Architecture by its repository-internal
// code (already normalized through model.FromSyno by the caller).
func (s *Store) FindArchitecture(ctx context.Context, q Querier, code string) (*model.Architecture, error) {
	row := q.QueryRow(ctx, `SELECT id, code FROM architecture WHERE code = $1`, code)
	var a model.Architecture
	if err := row.Scan(&a.ID, &a.Code); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// FindArchitectureByID looks up an Architecture by its primary key, used
// by the download recorder, which receives an architecture_id path
// segment rather than a code (spec.md §4.5).
func (s *Store) FindArchitectureByID(ctx context.Context, q Querier, id int64) (*model.Architecture, error) {
	row := q.QueryRow(ctx, `SELECT id, code FROM architecture WHERE id = $1`, id)
	var a model.Architecture
	if err := row.Scan(&a.ID, &a.Code); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ArchitecturesForBuild returns the architectures already bound to
// builds of version v with the given firmware_min, used by the
// reconciler's architecture-conflict check (spec.md §4.2 step 6).
func (s *Store) ArchitecturesForBuild(ctx context.Context, q Querier, versionID, firmwareMinID int64) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT DISTINCT a.code
		FROM build_architecture ba
		JOIN architecture a ON a.id = ba.architecture_id
		JOIN build b ON b.id = ba.build_id
		WHERE b.version_id = $1 AND b.firmware_min_id = $2`, versionID, firmwareMinID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}
