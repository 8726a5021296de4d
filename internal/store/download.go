package store

import (
	"context"

	"github.com/synocommunity/spkrepo/internal/model"
)

// RecordDownload appends a Download accounting row; downloads are
// write-once and never updated or deleted (spec.md §4.5).
func (s *Store) RecordDownload(ctx context.Context, q Querier, d *model.Download) error {
	row := q.QueryRow(ctx, `
		INSERT INTO download (build_id, architecture_id, firmware_build, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, date`,
		d.BuildID, d.ArchitectureID, d.FirmwareBuild, d.IPAddress, d.UserAgent)
	return row.Scan(&d.ID, &d.Date)
}

// CountDownloads reports the total number of recorded downloads for a
// build. Nothing in the repository calls it at present; the catalog's
// download counters come from PackageDownloadCounts.
func (s *Store) CountDownloads(ctx context.Context, q Querier, buildID int64) (int64, error) {
	row := q.QueryRow(ctx, `SELECT count(*) FROM download WHERE build_id = $1`, buildID)
	var n int64
	err := row.Scan(&n)
	return n, err
}

// PackageDownloadCounts returns a package's all-time download count and
// its count over the trailing 90 days, the two counters rendered as
// `download_count`/`recent_download_count` in catalog entries (spec.md
// §6), grounded on original_source/spkrepo/models.py's Package
// column_properties.
func (s *Store) PackageDownloadCounts(ctx context.Context, q Querier, packageID int64) (total, recent int64, err error) {
	row := q.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE d.date >= now() - interval '90 days')
		FROM download d
		JOIN build b ON b.id = d.build_id
		JOIN version v ON v.id = b.version_id
		WHERE v.package_id = $1`, packageID)
	err = row.Scan(&total, &recent)
	return total, recent, err
}
