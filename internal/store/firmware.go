package store

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/synocommunity/spkrepo/internal/model"
)

// FindFirmwareByBuild looks up a Firmware row by its monotonic build
// integer (spec.md §3).
func (s *Store) FindFirmwareByBuild(ctx context.Context, q Querier, build int) (*model.Firmware, error) {
	row := q.QueryRow(ctx, `SELECT id, version, build, type FROM firmware WHERE build = $1`, build)
	var f model.Firmware
	if err := row.Scan(&f.ID, &f.Version, &f.Build, &f.Type); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// FindFirmwareByID loads a Firmware row by its primary key.
func (s *Store) FindFirmwareByID(ctx context.Context, q Querier, id int64) (*model.Firmware, error) {
	row := q.QueryRow(ctx, `SELECT id, version, build, type FROM firmware WHERE id = $1`, id)
	var f model.Firmware
	if err := row.Scan(&f.ID, &f.Version, &f.Build, &f.Type); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// LatestDSMFirmwareAtOrBelow returns the DSM firmware row with the
// greatest build that does not exceed build, used to derive the "major"
// query parameter when the caller omits it (spec.md §4.3).
func (s *Store) LatestDSMFirmwareAtOrBelow(ctx context.Context, q Querier, build int) (*model.Firmware, error) {
	row := q.QueryRow(ctx, `
		SELECT id, version, build, type FROM firmware
		WHERE build <= $1 AND type = 'dsm'
		ORDER BY build DESC LIMIT 1`, build)
	var f model.Firmware
	if err := row.Scan(&f.ID, &f.Version, &f.Build, &f.Type); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}
