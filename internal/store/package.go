package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/synocommunity/spkrepo/internal/model"
)

// FindPackage looks up a Package by name, the unit the reconciler resolves
// an upload's INFO `package` key against (spec.md §4.2 step 1).
func (s *Store) FindPackage(ctx context.Context, q Querier, name string) (*model.Package, error) {
	row := q.QueryRow(ctx, `
		SELECT id, name, author_id, insert_date FROM package WHERE name = $1`, name)
	var p model.Package
	if err := row.Scan(&p.ID, &p.Name, &p.AuthorID, &p.InsertDate); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	maintainers, err := s.maintainersOf(ctx, q, p.ID)
	if err != nil {
		return nil, err
	}
	p.Maintainers = maintainers
	return &p, nil
}

// FindPackageByID loads a Package by its primary key.
func (s *Store) FindPackageByID(ctx context.Context, q Querier, id int64) (*model.Package, error) {
	row := q.QueryRow(ctx, `
		SELECT id, name, author_id, insert_date FROM package WHERE id = $1`, id)
	var p model.Package
	if err := row.Scan(&p.ID, &p.Name, &p.AuthorID, &p.InsertDate); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	maintainers, err := s.maintainersOf(ctx, q, p.ID)
	if err != nil {
		return nil, err
	}
	p.Maintainers = maintainers
	return &p, nil
}

func (s *Store) maintainersOf(ctx context.Context, q Querier, packageID int64) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, `SELECT user_id FROM package_maintainer WHERE package_id = $1`, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreatePackage inserts a new Package, implicitly authored and maintained
// by authorID (spec.md §4.2 step 1: an unknown package name is created on
// first upload).
func (s *Store) CreatePackage(ctx context.Context, q Querier, name string, authorID uuid.UUID) (*model.Package, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO package (name, author_id) VALUES ($1, $2)
		RETURNING id, name, author_id, insert_date`, name, authorID)
	var p model.Package
	if err := row.Scan(&p.ID, &p.Name, &p.AuthorID, &p.InsertDate); err != nil {
		return nil, err
	}
	if _, err := q.Exec(ctx, `
		INSERT INTO package_maintainer (package_id, user_id) VALUES ($1, $2)`, p.ID, authorID); err != nil {
		return nil, err
	}
	p.Maintainers = []uuid.UUID{authorID}
	return &p, nil
}

// IsMaintainer reports whether userID may upload new builds for packageID,
// the authorization check behind spec.md §4.2 step 1's "package already
// exists and caller is neither admin nor maintainer" rejection.
func (s *Store) IsMaintainer(ctx context.Context, q Querier, packageID int64, userID uuid.UUID) (bool, error) {
	row := q.QueryRow(ctx, `
		SELECT 1 FROM package_maintainer WHERE package_id = $1 AND user_id = $2`, packageID, userID)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PackageScreenshots returns a package's screenshot paths in insertion
// order, rendered as the catalog entry's `snapshot` URLs (spec.md §6).
func (s *Store) PackageScreenshots(ctx context.Context, q Querier, packageID int64) ([]string, error) {
	rows, err := q.Query(ctx, `SELECT path FROM screenshot WHERE package_id = $1 ORDER BY id`, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

// ListPackageNames returns every Package name, used by the admin CLI's
// depopulate-db command to sweep both rows and on-disk directories.
func (s *Store) ListPackageNames(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.Query(ctx, `SELECT name FROM package ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeletePackage removes a Package row; schema.sql's ON DELETE CASCADE
// chain takes every Version/Build/BuildManifest/Download underneath it
// with it (spec.md §3: "Deleting a Package removes the on-disk directory").
// The caller is responsible for the filesystem half of that invariant.
func (s *Store) DeletePackage(ctx context.Context, q Querier, id int64) error {
	_, err := q.Exec(ctx, `DELETE FROM package WHERE id = $1`, id)
	return err
}

// AddMaintainer grants userID upload rights on packageID. Idempotent.
func (s *Store) AddMaintainer(ctx context.Context, q Querier, packageID int64, userID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		INSERT INTO package_maintainer (package_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, packageID, userID)
	return err
}
