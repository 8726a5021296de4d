package store

import "context"

// Seed inserts the lookup-table rows a fresh database needs before any
// upload can reconcile: Architecture, Firmware, Language, Role and
// Service, matching original_source/spkrepo/utils.py's populate_db.
// Every insert is ON CONFLICT DO NOTHING so Seed is safe to run more than
// once against the same database.
func (s *Store) Seed(ctx context.Context) error {
	stmts := []string{
		`INSERT INTO architecture (code) VALUES
			('noarch'), ('cedarview'), ('88f628x'), ('qoriq')
			ON CONFLICT DO NOTHING`,
		`INSERT INTO firmware (version, build, type) VALUES
			('3.1', 1594, 'dsm'), ('5.0', 4458, 'dsm')
			ON CONFLICT DO NOTHING`,
		`INSERT INTO language (code, name) VALUES
			('enu', 'English'), ('fre', 'French')
			ON CONFLICT DO NOTHING`,
		`INSERT INTO role (name, description) VALUES
			('admin', 'Administrator'),
			('package_admin', 'Package Administrator'),
			('developer', 'Developer')
			ON CONFLICT DO NOTHING`,
		`INSERT INTO service (code) VALUES
			('apache-web'), ('mysql')
			ON CONFLICT DO NOTHING`,
	}
	for _, stmt := range stmts {
		if _, err := s.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
