package store

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/synocommunity/spkrepo/internal/model"
)

// FindLanguage looks up a Language by its three-letter code.
func (s *Store) FindLanguage(ctx context.Context, q Querier, code string) (*model.Language, error) {
	row := q.QueryRow(ctx, `SELECT id, code, name FROM language WHERE code = $1`, code)
	var l model.Language
	if err := row.Scan(&l.ID, &l.Code, &l.Name); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}
