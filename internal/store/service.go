package store

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/synocommunity/spkrepo/internal/model"
)

// FindService looks up a Service by its opaque code.
func (s *Store) FindService(ctx context.Context, q Querier, code string) (*model.Service, error) {
	row := q.QueryRow(ctx, `SELECT id, code FROM service WHERE code = $1`, code)
	var svc model.Service
	if err := row.Scan(&svc.ID, &svc.Code); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &svc, nil
}
