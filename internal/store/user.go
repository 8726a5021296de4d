package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/synocommunity/spkrepo/internal/model"
)

// FindUserByAPIKey resolves the principal behind an HTTP Basic-auth
// username, which spec.md §6 defines as the API key itself. Returns
// ErrNotFound if no active user carries that key.
func (s *Store) FindUserByAPIKey(ctx context.Context, q Querier, apiKey string) (*model.User, error) {
	row := q.QueryRow(ctx, `
		SELECT id, username, api_key FROM "user"
		WHERE api_key = $1 AND active`, apiKey)
	var u model.User
	if err := row.Scan(&u.ID, &u.Username, &u.APIKey); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	roles, err := s.rolesFor(ctx, q, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

func (s *Store) rolesFor(ctx context.Context, q Querier, userID uuid.UUID) (map[model.Role]bool, error) {
	rows, err := q.Query(ctx, `
		SELECT r.name FROM role r
		JOIN user_role ur ON ur.role_id = r.id
		WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := map[model.Role]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles[model.Role(name)] = true
	}
	return roles, rows.Err()
}

// CreateUser inserts a new user with a freshly generated id and the given
// roles, grounded on original_source/spkrepo/cli.py's create_user command.
func (s *Store) CreateUser(ctx context.Context, q Querier, username, apiKey string, roles []model.Role) (*model.User, error) {
	id := uuid.New()
	if _, err := q.Exec(ctx, `
		INSERT INTO "user" (id, username, api_key, active) VALUES ($1, $2, $3, true)`,
		id, username, apiKey); err != nil {
		return nil, err
	}
	for _, role := range roles {
		if _, err := q.Exec(ctx, `
			INSERT INTO user_role (user_id, role_id)
			SELECT $1, id FROM role WHERE name = $2`, id, string(role)); err != nil {
			return nil, err
		}
	}
	roleSet := map[model.Role]bool{}
	for _, r := range roles {
		roleSet[r] = true
	}
	return &model.User{ID: id, Username: username, APIKey: apiKey, Roles: roleSet}, nil
}
