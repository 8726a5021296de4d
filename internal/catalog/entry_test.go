package catalog

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/synocommunity/spkrepo/internal/model"
	"github.com/synocommunity/spkrepo/internal/store"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func baseRow() store.CatalogRow {
	return store.CatalogRow{
		PackageName: "nzbget",
		Version: model.Version{
			PackageID:       1,
			VersionNumber:   2,
			UpstreamVersion: "21.1",
			DisplayNames:    map[string]string{model.DefaultLanguage: "NZBGet"},
			Descriptions:    map[string]string{model.DefaultLanguage: "Usenet downloader"},
			Icons:           map[int]string{},
		},
		Build: model.Build{Path: "nzbget/2/nzbget.v2.f1594[noarch].spk"},
	}
}

func TestBuildEntryQFlagsNoLicenseNoWizards(t *testing.T) {
	row := baseRow()
	entry := buildEntry(row, renderParams{baseURL: "https://repo.example", language: model.DefaultLanguage})
	assert.True(t, entry.QInst)
	assert.True(t, entry.QUpgrade)
	assert.True(t, entry.QStart)
}

func TestBuildEntryLicensedPackageNeverQuick(t *testing.T) {
	row := baseRow()
	row.Version.License = strPtr("GPL-3.0")
	entry := buildEntry(row, renderParams{baseURL: "https://repo.example", language: model.DefaultLanguage})
	assert.False(t, entry.QInst)
	assert.False(t, entry.QUpgrade)
	assert.False(t, entry.QStart)
}

func TestBuildEntryStartableFalseBlocksQStartOnly(t *testing.T) {
	row := baseRow()
	row.Version.Startable = boolPtr(false)
	entry := buildEntry(row, renderParams{baseURL: "https://repo.example", language: model.DefaultLanguage})
	assert.True(t, entry.QInst)
	assert.True(t, entry.QUpgrade)
	assert.False(t, entry.QStart)
}

func TestBuildEntryInstallWizardBlocksQInstAndQStart(t *testing.T) {
	row := baseRow()
	row.Version.InstallWizard = true
	entry := buildEntry(row, renderParams{baseURL: "https://repo.example", language: model.DefaultLanguage})
	assert.False(t, entry.QInst)
	assert.True(t, entry.QUpgrade)
	assert.False(t, entry.QStart)
}

func TestBuildEntryLanguageFallsBackToDefault(t *testing.T) {
	row := baseRow()
	entry := buildEntry(row, renderParams{baseURL: "https://repo.example", language: "fre"})
	assert.Equal(t, "NZBGet", entry.DName)
	assert.Equal(t, "Usenet downloader", entry.Desc)
}

func TestBuildEntryLanguagePrefersMatch(t *testing.T) {
	row := baseRow()
	row.Version.DisplayNames["fre"] = "NZBGet FR"
	entry := buildEntry(row, renderParams{baseURL: "https://repo.example", language: "fre"})
	assert.Equal(t, "NZBGet FR", entry.DName)
}

func TestBuildEntryOptionalFieldsOmittedWhenAbsent(t *testing.T) {
	row := baseRow()
	entry := buildEntry(row, renderParams{baseURL: "https://repo.example", language: model.DefaultLanguage})
	assert.Empty(t, entry.ReportURL)
	assert.False(t, entry.Beta)
	assert.Empty(t, entry.Changelog)
	assert.Empty(t, entry.DepSers)
	assert.Empty(t, entry.MD5)
	assert.Nil(t, entry.Snapshot)
}

func TestBuildEntryReportURLImpliesBeta(t *testing.T) {
	row := baseRow()
	row.Version.ReportURL = strPtr("https://example.com/report")
	entry := buildEntry(row, renderParams{baseURL: "https://repo.example", language: model.DefaultLanguage})
	assert.Equal(t, "https://example.com/report", entry.ReportURL)
	assert.True(t, entry.Beta)
}

func TestBuildEntryManifestPopulatesDepsAndConf(t *testing.T) {
	row := baseRow()
	manifest := &model.BuildManifest{
		Dependencies:  strPtr("python3"),
		Conflicts:     strPtr("nzbget-beta"),
		ConfDeps:      strPtr(`{"python3":">=3.8"}`),
		ConfPrivilege: strPtr(`{"run-as":"package"}`),
	}
	entry := buildEntry(row, renderParams{baseURL: "https://repo.example", language: model.DefaultLanguage, manifest: manifest})
	assert.Equal(t, "python3", *entry.DepPkgs)
	assert.Equal(t, "nzbget-beta", *entry.ConflictPkgs)
	assert.Equal(t, `{"python3":">=3.8"}`, entry.ConfDepPkgs)
	assert.Equal(t, `{"run-as":"package"}`, entry.ConfPrivilege)
	assert.Empty(t, entry.ConfResource)
}

func TestBuildEntryLinkAndThumbnailAreAbsolute(t *testing.T) {
	row := baseRow()
	row.Version.Icons[72] = "nzbget/2/icon72.png"
	entry := buildEntry(row, renderParams{baseURL: "https://repo.example/", language: model.DefaultLanguage})
	assert.Equal(t, "https://repo.example/nas/nzbget/2/nzbget.v2.f1594[noarch].spk", entry.Link)
	assert.Equal(t, []string{"https://repo.example/nas/nzbget/2/icon72.png"}, entry.Thumbnail)
}

func TestBuildEntryServiceDepsJoinedWithSpace(t *testing.T) {
	row := baseRow()
	row.Version.ServiceDeps = []string{"smb", "nfs"}
	entry := buildEntry(row, renderParams{baseURL: "https://repo.example", language: model.DefaultLanguage})
	assert.Equal(t, "smb nfs", entry.DepSers)
}

// Two renders of the same row and params must produce field-for-field
// identical entries; cmp.Diff pinpoints which field regressed instead of
// just reporting objects differ, which a plain reflect.DeepEqual hides.
func TestBuildEntryIsDeterministic(t *testing.T) {
	row := baseRow()
	params := renderParams{baseURL: "https://repo.example", language: model.DefaultLanguage}
	first := buildEntry(row, params)
	second := buildEntry(row, params)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("buildEntry is not deterministic (-first +second):\n%s", diff)
	}
}
