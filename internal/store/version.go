package store

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/synocommunity/spkrepo/internal/model"
)

// FindVersion looks up a Version by (packageID, versionNumber), the unique
// key the reconciler resolves an upload's INFO `version` against (spec.md
// §4.2 step 2). Its localized names/descriptions/icons/service deps are
// loaded alongside so callers never see a partially populated Version.
func (s *Store) FindVersion(ctx context.Context, q Querier, packageID int64, versionNumber int) (*model.Version, error) {
	row := q.QueryRow(ctx, `
		SELECT id, package_id, version_number, upstream_version, changelog,
		       report_url, distributor, distributor_url, maintainer,
		       maintainer_url, license, install_wizard, upgrade_wizard,
		       startable, insert_date
		FROM version WHERE package_id = $1 AND version_number = $2`, packageID, versionNumber)
	v, err := scanVersion(row)
	if err != nil {
		return nil, err
	}
	return s.hydrateVersion(ctx, q, v)
}

// FindVersionByID loads a Version by its primary key.
func (s *Store) FindVersionByID(ctx context.Context, q Querier, id int64) (*model.Version, error) {
	row := q.QueryRow(ctx, `
		SELECT id, package_id, version_number, upstream_version, changelog,
		       report_url, distributor, distributor_url, maintainer,
		       maintainer_url, license, install_wizard, upgrade_wizard,
		       startable, insert_date
		FROM version WHERE id = $1`, id)
	v, err := scanVersion(row)
	if err != nil {
		return nil, err
	}
	return s.hydrateVersion(ctx, q, v)
}

func scanVersion(row pgx.Row) (*model.Version, error) {
	var v model.Version
	if err := row.Scan(&v.ID, &v.PackageID, &v.VersionNumber, &v.UpstreamVersion, &v.Changelog,
		&v.ReportURL, &v.Distributor, &v.DistributorURL, &v.Maintainer, &v.MaintainerURL,
		&v.License, &v.InstallWizard, &v.UpgradeWizard, &v.Startable, &v.InsertDate); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (s *Store) hydrateVersion(ctx context.Context, q Querier, v *model.Version) (*model.Version, error) {
	names, err := s.localizedValues(ctx, q, "displayname", v.ID)
	if err != nil {
		return nil, err
	}
	v.DisplayNames = names

	descriptions, err := s.localizedValues(ctx, q, "description", v.ID)
	if err != nil {
		return nil, err
	}
	v.Descriptions = descriptions

	icons, err := s.iconsOf(ctx, q, v.ID)
	if err != nil {
		return nil, err
	}
	v.Icons = icons

	deps, err := s.serviceDepsOf(ctx, q, v.ID)
	if err != nil {
		return nil, err
	}
	v.ServiceDeps = deps
	return v, nil
}

func (s *Store) localizedValues(ctx context.Context, q Querier, table string, versionID int64) (map[string]string, error) {
	// table is always one of the two literal constants below; never
	// caller-supplied, so this string-built query carries no injection risk.
	query := `SELECT l.code, t.value FROM ` + table + ` t JOIN language l ON l.id = t.language_id WHERE t.version_id = $1`
	rows, err := q.Query(ctx, query, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var code, value string
		if err := rows.Scan(&code, &value); err != nil {
			return nil, err
		}
		values[code] = value
	}
	return values, rows.Err()
}

func (s *Store) iconsOf(ctx context.Context, q Querier, versionID int64) (map[int]string, error) {
	rows, err := q.Query(ctx, `SELECT size, path FROM icon WHERE version_id = $1`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	icons := map[int]string{}
	for rows.Next() {
		var size int
		var path string
		if err := rows.Scan(&size, &path); err != nil {
			return nil, err
		}
		icons[size] = path
	}
	return icons, rows.Err()
}

func (s *Store) serviceDepsOf(ctx context.Context, q Querier, versionID int64) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT sv.code FROM version_service_dependency vsd
		JOIN service sv ON sv.id = vsd.service_id
		WHERE vsd.version_id = $1`, versionID)
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

// CreateVersion inserts v and its localized names/descriptions/icons/
// service deps in one shot. Callers run this inside the reconciler's
// serializable transaction (spec.md §4.2 step 2: "version unknown to the
// package, create it").
func (s *Store) CreateVersion(ctx context.Context, q Querier, v *model.Version) (*model.Version, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO version (package_id, version_number, upstream_version, changelog,
			report_url, distributor, distributor_url, maintainer, maintainer_url,
			license, install_wizard, upgrade_wizard, startable)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, insert_date`,
		v.PackageID, v.VersionNumber, v.UpstreamVersion, v.Changelog, v.ReportURL,
		v.Distributor, v.DistributorURL, v.Maintainer, v.MaintainerURL, v.License,
		v.InstallWizard, v.UpgradeWizard, v.Startable)
	if err := row.Scan(&v.ID, &v.InsertDate); err != nil {
		return nil, err
	}

	for code, value := range v.DisplayNames {
		if err := s.upsertLocalized(ctx, q, "displayname", v.ID, code, value); err != nil {
			return nil, err
		}
	}
	for code, value := range v.Descriptions {
		if err := s.upsertLocalized(ctx, q, "description", v.ID, code, value); err != nil {
			return nil, err
		}
	}
	for size, path := range v.Icons {
		if _, err := q.Exec(ctx, `
			INSERT INTO icon (version_id, size, path) VALUES ($1, $2, $3)`, v.ID, size, path); err != nil {
			return nil, err
		}
	}
	for _, code := range v.ServiceDeps {
		if _, err := q.Exec(ctx, `
			INSERT INTO version_service_dependency (version_id, service_id)
			SELECT $1, id FROM service WHERE code = $2
			ON CONFLICT DO NOTHING`, v.ID, code); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// ReplaceVersionDetails overwrites v's scalar columns and discards and
// re-inserts all of its localized names/descriptions/icons/service deps,
// per spec.md §4.2's resync note: "replacing localized names/descriptions
// atomically (all prior entries for that Version are discarded first)".
func (s *Store) ReplaceVersionDetails(ctx context.Context, q Querier, v *model.Version) error {
	if _, err := q.Exec(ctx, `
		UPDATE version SET changelog = $2, report_url = $3, distributor = $4,
			distributor_url = $5, maintainer = $6, maintainer_url = $7, license = $8,
			install_wizard = $9, upgrade_wizard = $10, startable = $11
		WHERE id = $1`,
		v.ID, v.Changelog, v.ReportURL, v.Distributor, v.DistributorURL, v.Maintainer,
		v.MaintainerURL, v.License, v.InstallWizard, v.UpgradeWizard, v.Startable); err != nil {
		return err
	}

	for _, table := range []string{"displayname", "description", "icon", "version_service_dependency"} {
		if _, err := q.Exec(ctx, `DELETE FROM `+table+` WHERE version_id = $1`, v.ID); err != nil {
			return err
		}
	}
	for code, value := range v.DisplayNames {
		if err := s.upsertLocalized(ctx, q, "displayname", v.ID, code, value); err != nil {
			return err
		}
	}
	for code, value := range v.Descriptions {
		if err := s.upsertLocalized(ctx, q, "description", v.ID, code, value); err != nil {
			return err
		}
	}
	for size, path := range v.Icons {
		if _, err := q.Exec(ctx, `
			INSERT INTO icon (version_id, size, path) VALUES ($1, $2, $3)`, v.ID, size, path); err != nil {
			return err
		}
	}
	for _, code := range v.ServiceDeps {
		if _, err := q.Exec(ctx, `
			INSERT INTO version_service_dependency (version_id, service_id)
			SELECT $1, id FROM service WHERE code = $2
			ON CONFLICT DO NOTHING`, v.ID, code); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertLocalized(ctx context.Context, q Querier, table string, versionID int64, languageCode, value string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO `+table+` (version_id, language_id, value)
		SELECT $1, id, $3 FROM language WHERE code = $2
		ON CONFLICT (version_id, language_id) DO UPDATE SET value = excluded.value`,
		versionID, languageCode, value)
	return err
}
