// Package catalog implements the read path of spec.md §4.3: it resolves,
// renders, and memoizes the single best Build per Package for a given
// appliance query.
package catalog

import (
	"strings"

	"github.com/synocommunity/spkrepo/internal/model"
	"github.com/synocommunity/spkrepo/internal/store"
)

// Entry is the rendered JSON shape of spec.md §6's "Catalog JSON entry".
// Fields are tagged `omitempty` to match the source's practice of
// omitting absent optional attributes rather than emitting nulls, with
// the two explicitly-nullable attributes (deppkgs, conflictpkgs) kept as
// pointers without omitempty, so they are emitted as null when absent and
// "present but empty string" stays distinguishable from "absent".
type Entry struct {
	Package string   `json:"package"`
	Version string   `json:"version"`
	DName   string   `json:"dname"`
	Desc    string   `json:"desc"`
	Link    string   `json:"link"`
	Thumbnail []string `json:"thumbnail"`

	QInst    bool `json:"qinst"`
	QUpgrade bool `json:"qupgrade"`
	QStart   bool `json:"qstart"`

	DepPkgs      *string `json:"deppkgs"`
	ConflictPkgs *string `json:"conflictpkgs"`

	DownloadCount       int64 `json:"download_count"`
	RecentDownloadCount int64 `json:"recent_download_count"`

	Snapshot []string `json:"snapshot,omitempty"`

	ReportURL string `json:"report_url,omitempty"`
	Beta      bool   `json:"beta,omitempty"`

	Changelog      string `json:"changelog,omitempty"`
	Distributor    string `json:"distributor,omitempty"`
	DistributorURL string `json:"distributor_url,omitempty"`
	Maintainer     string `json:"maintainer,omitempty"`
	MaintainerURL  string `json:"maintainer_url,omitempty"`

	DepSers string `json:"depsers,omitempty"`
	MD5     string `json:"md5,omitempty"`

	ConfDepPkgs   string `json:"conf_deppkgs,omitempty"`
	ConfConxPkgs  string `json:"conf_conxpkgs,omitempty"`
	ConfPrivilege string `json:"conf_privilege,omitempty"`
	ConfResource  string `json:"conf_resource,omitempty"`
}

// renderParams carries everything buildEntry needs beyond the resolved
// row: absolute-URL rendering, localized field selection, and download
// counters that live outside the row itself.
type renderParams struct {
	baseURL             string
	language            string
	screenshots         []string
	downloadCount       int64
	recentDownloadCount int64
	manifest            *model.BuildManifest
}

// buildEntry mirrors original_source/spkrepo/views/nas.py's
// build_package_entry field-for-field, including the qinst/qupgrade/qstart
// derivation (license absence plus wizard/startable flags) and the
// presence-gated optional attributes.
func buildEntry(row store.CatalogRow, p renderParams) Entry {
	v := row.Version
	dname, ok := v.DisplayNames[p.language]
	if !ok {
		dname = v.DisplayNames[model.DefaultLanguage]
	}
	desc, ok := v.Descriptions[p.language]
	if !ok {
		desc = v.Descriptions[model.DefaultLanguage]
	}

	thumbnails := make([]string, 0, len(v.Icons))
	for _, iconPath := range v.Icons {
		thumbnails = append(thumbnails, dataURL(p.baseURL, iconPath))
	}

	noLicense := v.License == nil || *v.License == ""
	entry := Entry{
		Package:             row.PackageName,
		Version:             v.VersionString(),
		DName:               dname,
		Desc:                desc,
		Link:                dataURL(p.baseURL, row.Build.Path),
		Thumbnail:           thumbnails,
		QInst:               noLicense && !v.InstallWizard,
		QUpgrade:            noLicense && !v.UpgradeWizard,
		QStart:              noLicense && !v.InstallWizard && (v.Startable == nil || *v.Startable),
		DownloadCount:       p.downloadCount,
		RecentDownloadCount: p.recentDownloadCount,
	}

	if p.manifest != nil {
		entry.DepPkgs = p.manifest.Dependencies
		entry.ConflictPkgs = p.manifest.Conflicts
		if p.manifest.ConfDeps != nil {
			entry.ConfDepPkgs = *p.manifest.ConfDeps
		}
		if p.manifest.ConfConflicts != nil {
			entry.ConfConxPkgs = *p.manifest.ConfConflicts
		}
		if p.manifest.ConfPrivilege != nil {
			entry.ConfPrivilege = *p.manifest.ConfPrivilege
		}
		if p.manifest.ConfResource != nil {
			entry.ConfResource = *p.manifest.ConfResource
		}
	}

	if len(p.screenshots) > 0 {
		entry.Snapshot = p.screenshots
	}
	if v.ReportURL != nil && *v.ReportURL != "" {
		entry.ReportURL = *v.ReportURL
		entry.Beta = true
	}
	if v.Changelog != nil {
		entry.Changelog = *v.Changelog
	}
	if v.Distributor != nil {
		entry.Distributor = *v.Distributor
	}
	if v.DistributorURL != nil {
		entry.DistributorURL = *v.DistributorURL
	}
	if v.Maintainer != nil {
		entry.Maintainer = *v.Maintainer
	}
	if v.MaintainerURL != nil {
		entry.MaintainerURL = *v.MaintainerURL
	}
	if len(v.ServiceDeps) > 0 {
		entry.DepSers = strings.Join(v.ServiceDeps, " ")
	}
	if row.Build.MD5 != nil {
		entry.MD5 = *row.Build.MD5
	}
	return entry
}

func dataURL(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + "/nas/" + path
}

// Envelope is the `{packages, keyrings}` wrapper spec.md §4.3 requires for
// `build ≥ 5004` (DSM 5.1+); pre-5.1 appliances get a bare array.
type Envelope struct {
	Packages []Entry  `json:"packages"`
	Keyrings []string `json:"keyrings"`
}
