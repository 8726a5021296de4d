package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/synocommunity/spkrepo/internal/model"
)

// FindActiveBuild looks up the active build of a version for a given
// firmware_min. Nothing in the repository calls it at present: the
// reconciler answers a re-upload that overlaps an existing build's
// architectures with an architecture-conflict error rather than
// superseding that build.
func (s *Store) FindActiveBuild(ctx context.Context, q Querier, versionID, firmwareMinID int64) (*model.Build, error) {
	row := q.QueryRow(ctx, `
		SELECT id, version_id, firmware_min_id, firmware_max_id, publisher_id,
		       path, checksum, md5, active, insert_date
		FROM build WHERE version_id = $1 AND firmware_min_id = $2 AND active`, versionID, firmwareMinID)
	b, err := scanBuild(row)
	if err != nil {
		return nil, err
	}
	return s.hydrateBuild(ctx, q, b)
}

// FindBuildByID loads a Build by its primary key.
func (s *Store) FindBuildByID(ctx context.Context, q Querier, id int64) (*model.Build, error) {
	row := q.QueryRow(ctx, `
		SELECT id, version_id, firmware_min_id, firmware_max_id, publisher_id,
		       path, checksum, md5, active, insert_date
		FROM build WHERE id = $1`, id)
	b, err := scanBuild(row)
	if err != nil {
		return nil, err
	}
	return s.hydrateBuild(ctx, q, b)
}

func scanBuild(row pgx.Row) (*model.Build, error) {
	var b model.Build
	if err := row.Scan(&b.ID, &b.VersionID, &b.FirmwareMinID, &b.FirmwareMaxID, &b.PublisherID,
		&b.Path, &b.Checksum, &b.MD5, &b.Active, &b.InsertDate); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) hydrateBuild(ctx context.Context, q Querier, b *model.Build) (*model.Build, error) {
	codes, err := s.ArchitecturesForBuild(ctx, q, b.VersionID, b.FirmwareMinID)
	if err != nil {
		return nil, err
	}
	sort.Strings(codes)
	b.Architectures = codes
	return b, nil
}

// CreateBuild inserts b and its architecture bindings, leaving Active as
// given by the caller — the reconciler decides activation (spec.md §4.2
// step 9) after the conflict check has already run in the same
// transaction.
func (s *Store) CreateBuild(ctx context.Context, q Querier, b *model.Build) (*model.Build, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO build (version_id, firmware_min_id, firmware_max_id, publisher_id,
			path, checksum, md5, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, insert_date`,
		b.VersionID, b.FirmwareMinID, b.FirmwareMaxID, b.PublisherID, b.Path,
		b.Checksum, b.MD5, b.Active)
	if err := row.Scan(&b.ID, &b.InsertDate); err != nil {
		return nil, err
	}
	for _, code := range b.Architectures {
		if _, err := q.Exec(ctx, `
			INSERT INTO build_architecture (build_id, architecture_id)
			SELECT $1, id FROM architecture WHERE code = $2`, b.ID, code); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// ReplaceBuildArchitectures discards and re-inserts a build's architecture
// bindings, used by the resync path to refresh them from a re-parsed SPK
// (spec.md §4.2's resync note: "refreshing architectures and firmwares").
func (s *Store) ReplaceBuildArchitectures(ctx context.Context, q Querier, buildID int64, archCodes []string) error {
	if _, err := q.Exec(ctx, `DELETE FROM build_architecture WHERE build_id = $1`, buildID); err != nil {
		return err
	}
	for _, code := range archCodes {
		if _, err := q.Exec(ctx, `
			INSERT INTO build_architecture (build_id, architecture_id)
			SELECT $1, id FROM architecture WHERE code = $2`, buildID, code); err != nil {
			return err
		}
	}
	return nil
}

// UpdateBuildFirmware rewrites a build's firmware_min_id, used by resync.
func (s *Store) UpdateBuildFirmware(ctx context.Context, q Querier, buildID, firmwareMinID int64) error {
	_, err := q.Exec(ctx, `UPDATE build SET firmware_min_id = $2 WHERE id = $1`, buildID, firmwareMinID)
	return err
}

// UpdateBuildMD5 persists the MD5 computed over a (re)written build file.
func (s *Store) UpdateBuildMD5(ctx context.Context, q Querier, buildID int64, md5Hex string) error {
	_, err := q.Exec(ctx, `UPDATE build SET md5 = $2 WHERE id = $1`, buildID, md5Hex)
	return err
}

// DeactivateBuild flips a build's active flag to false. Its one caller is
// the `spkrepod deactivate-build` admin command; no upload or resync path
// deactivates builds.
func (s *Store) DeactivateBuild(ctx context.Context, q Querier, buildID int64) error {
	_, err := q.Exec(ctx, `UPDATE build SET active = false WHERE id = $1`, buildID)
	return err
}

// ActivateBuild flips a build's active flag to true. A freshly reconciled
// Build starts inactive (spec.md §4.2 step 8's note: "not active by
// default"); publishing it to the catalog is this separate, explicit
// admin action, matching the source's VersionView activate/deactivate
// bulk actions.
func (s *Store) ActivateBuild(ctx context.Context, q Querier, buildID int64) error {
	_, err := q.Exec(ctx, `UPDATE build SET active = true WHERE id = $1`, buildID)
	return err
}

// UpsertBuildManifest writes the 1:1 manifest row for a build, replacing
// any existing one — manifests never outlive a resync (spec.md §9). The
// two jsonb columns are bound through pgtype.JSONB rather than relying on
// pgx's implicit string<->jsonb coercion. JSONB.Set does not check the
// payload; a malformed conf/privilege or conf/resource payload is rejected
// by Postgres's jsonb input when the statement executes.
func (s *Store) UpsertBuildManifest(ctx context.Context, q Querier, m *model.BuildManifest) error {
	privilege, err := jsonbFromStringPtr(m.ConfPrivilege)
	if err != nil {
		return fmt.Errorf("store: conf_privilege: %w", err)
	}
	resource, err := jsonbFromStringPtr(m.ConfResource)
	if err != nil {
		return fmt.Errorf("store: conf_resource: %w", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO build_manifest (build_id, dependencies, conflicts, conf_deppkgs,
			conf_conxpkgs, conf_privilege, conf_resource)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (build_id) DO UPDATE SET
			dependencies = excluded.dependencies,
			conflicts = excluded.conflicts,
			conf_deppkgs = excluded.conf_deppkgs,
			conf_conxpkgs = excluded.conf_conxpkgs,
			conf_privilege = excluded.conf_privilege,
			conf_resource = excluded.conf_resource`,
		m.BuildID, m.Dependencies, m.Conflicts, m.ConfDeps, m.ConfConflicts,
		privilege, resource)
	return err
}

// FindBuildManifest loads the manifest for a build, if any.
func (s *Store) FindBuildManifest(ctx context.Context, q Querier, buildID int64) (*model.BuildManifest, error) {
	row := q.QueryRow(ctx, `
		SELECT build_id, dependencies, conflicts, conf_deppkgs, conf_conxpkgs,
		       conf_privilege, conf_resource
		FROM build_manifest WHERE build_id = $1`, buildID)
	var m model.BuildManifest
	var privilege, resource pgtype.JSONB
	if err := row.Scan(&m.BuildID, &m.Dependencies, &m.Conflicts, &m.ConfDeps,
		&m.ConfConflicts, &privilege, &resource); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m.ConfPrivilege = stringPtrFromJSONB(privilege)
	m.ConfResource = stringPtrFromJSONB(resource)
	return &m, nil
}

// jsonbFromStringPtr adapts BuildManifest's *string conf/* fields (raw JSON
// text, per model.BuildManifest's doc comment) to pgtype.JSONB for binding.
func jsonbFromStringPtr(s *string) (pgtype.JSONB, error) {
	var j pgtype.JSONB
	if s == nil {
		return j, j.Set(nil)
	}
	return j, j.Set([]byte(*s))
}

func stringPtrFromJSONB(j pgtype.JSONB) *string {
	if j.Status != pgtype.Present {
		return nil
	}
	s := string(j.Bytes)
	return &s
}

// CatalogRow is one resolved entry from ResolveCatalog's three-stage CTE
// (spec.md §4.3): the build, its owning version and package name, enough
// to render a catalog entry without further queries.
type CatalogRow struct {
	PackageName string
	Version     model.Version
	Build       model.Build
	Firmware    model.Firmware
}

// ResolveCatalog runs the catalog resolution CTE described by spec.md
// §4.3. eligible_builds keeps the active builds whose firmware range
// covers the requested build, whose architecture is the requested one or
// noarch, and whose firmware_min version starts with the requested major
// (or, for a sub-6 major, a noarch build with a 3.x firmware_min);
// candidate_versions and latest_version pick, per package, the highest
// version_number that has an eligible build, skipping versions with a
// report_url unless beta is set; candidate_builds and chosen_build then
// pick, for that version, the eligible build with the highest
// firmware_min. Internal/catalog wraps this with its TTL cache.
func (s *Store) ResolveCatalog(ctx context.Context, q Querier, archCode string, firmwareBuild, major int, beta bool) ([]CatalogRow, error) {
	rows, err := q.Query(ctx, `
		WITH eligible_builds AS (
			SELECT b.id AS build_id, b.version_id, f.build AS firmware_min_build, a.code AS arch_code
			FROM build b
			JOIN firmware f ON f.id = b.firmware_min_id
			JOIN build_architecture ba ON ba.build_id = b.id
			JOIN architecture a ON a.id = ba.architecture_id
			WHERE b.active AND f.build <= $2 AND (a.code = $1 OR a.code = 'noarch')
			      AND (b.firmware_max_id IS NULL OR
			           (SELECT build FROM firmware WHERE id = b.firmware_max_id) >= $2)
			      AND (
			           f.version LIKE ($3::text || '.%')
			           OR (a.code = 'noarch' AND $3 < 6 AND f.version LIKE '3.%')
			      )
		),
		candidate_versions AS (
			SELECT v.*, p.name AS package_name,
			       row_number() OVER (PARTITION BY v.package_id ORDER BY v.version_number DESC) AS rn
			FROM version v
			JOIN package p ON p.id = v.package_id
			JOIN eligible_builds eb ON eb.version_id = v.id
			WHERE $4 OR v.report_url IS NULL OR v.report_url = ''
		),
		latest_version AS (
			SELECT DISTINCT * FROM candidate_versions WHERE rn = 1
		),
		candidate_builds AS (
			SELECT b.*, lv.package_name, lv.id AS lv_version_id,
			       row_number() OVER (PARTITION BY b.version_id ORDER BY f.build DESC) AS rn
			FROM build b
			JOIN latest_version lv ON lv.id = b.version_id
			JOIN firmware f ON f.id = b.firmware_min_id
			JOIN eligible_builds eb ON eb.build_id = b.id
		),
		chosen_build AS (
			SELECT * FROM candidate_builds WHERE rn = 1
		)
		SELECT cb.package_name, v.id, v.package_id, v.version_number, v.upstream_version,
		       v.changelog, v.report_url, v.distributor, v.distributor_url, v.maintainer,
		       v.maintainer_url, v.license, v.install_wizard, v.upgrade_wizard, v.startable,
		       v.insert_date,
		       cb.id, cb.version_id, cb.firmware_min_id, cb.firmware_max_id, cb.publisher_id,
		       cb.path, cb.checksum, cb.md5, cb.active, cb.insert_date,
		       f.id, f.version, f.build, f.type
		FROM chosen_build cb
		JOIN version v ON v.id = cb.lv_version_id
		JOIN firmware f ON f.id = cb.firmware_min_id`,
		archCode, firmwareBuild, major, beta)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CatalogRow
	for rows.Next() {
		var r CatalogRow
		if err := rows.Scan(
			&r.PackageName,
			&r.Version.ID, &r.Version.PackageID, &r.Version.VersionNumber, &r.Version.UpstreamVersion,
			&r.Version.Changelog, &r.Version.ReportURL, &r.Version.Distributor, &r.Version.DistributorURL,
			&r.Version.Maintainer, &r.Version.MaintainerURL, &r.Version.License, &r.Version.InstallWizard,
			&r.Version.UpgradeWizard, &r.Version.Startable, &r.Version.InsertDate,
			&r.Build.ID, &r.Build.VersionID, &r.Build.FirmwareMinID, &r.Build.FirmwareMaxID,
			&r.Build.PublisherID, &r.Build.Path, &r.Build.Checksum, &r.Build.MD5, &r.Build.Active,
			&r.Build.InsertDate,
			&r.Firmware.ID, &r.Firmware.Version, &r.Firmware.Build, &r.Firmware.Type,
		); err != nil {
			return nil, err
		}
		hydrated, err := s.hydrateVersion(ctx, q, &r.Version)
		if err != nil {
			return nil, err
		}
		r.Version = *hydrated
		archs, err := s.ArchitecturesForBuild(ctx, q, r.Build.VersionID, r.Build.FirmwareMinID)
		if err != nil {
			return nil, err
		}
		sort.Strings(archs)
		r.Build.Architectures = archs
		out = append(out, r)
	}
	return out, rows.Err()
}
