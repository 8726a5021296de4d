// Package model defines the entities of §3 of the specification:
// Package, Version, Build, BuildManifest, Firmware, Architecture,
// Language, Service, Download, User and Role, along with the invariants
// attached directly to their shape (regexes, derived predicates). Nothing
// in this package touches the database or filesystem; internal/store and
// internal/reconcile do.
package model

import (
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// PackageNameRe is the grammar for Package.name (spec.md §3).
var PackageNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// IconSizes are the only valid Icon.size values.
var IconSizes = [3]int{72, 120, 256}

// Role is one of the three roles a User can hold.
type Role string

const (
	RoleAdmin        Role = "admin"
	RolePackageAdmin Role = "package_admin"
	RoleDeveloper    Role = "developer"
)

// User is an authenticated principal. Session/password management is an
// external collaborator (spec.md Non-goals); this struct only carries what
// the core needs to authorize requests.
type User struct {
	ID       uuid.UUID
	Username string
	APIKey   string
	Roles    map[Role]bool
}

// HasRole reports whether the user holds r.
func (u User) HasRole(r Role) bool {
	return u.Roles[r]
}

// Architecture is a repository-internal CPU identifier. FromSyno
// normalizes an appliance-reported code to the repository code; ToSyno is
// its inverse, used when emitting appliance-facing values.
type Architecture struct {
	ID   int64
	Code string
}

// NoArch is the special Architecture.code that matches any query
// architecture.
const NoArch = "noarch"

// FromSyno maps appliance-reported architecture codes to repository codes.
var FromSyno = map[string]string{
	"88f6281": "88f628x",
	"88f6282": "88f628x",
}

// ToSyno is the inverse of FromSyno, used when the repository code must be
// reported back in an appliance-facing form.
var ToSyno = map[string]string{
	"88f628x": "88f6281",
}

// NormalizeArch applies FromSyno, leaving unknown codes unchanged so the
// caller can still fail the lookup with the original code in the error.
func NormalizeArch(code string) string {
	if normalized, ok := FromSyno[code]; ok {
		return normalized
	}
	return code
}

// Language is a three-letter ISO-ish code; "enu" is the mandatory default
// for display names and descriptions.
type Language struct {
	ID   int64
	Code string
	Name string
}

// DefaultLanguage is the language every Version must carry.
const DefaultLanguage = "enu"

// FirmwareType distinguishes DSM firmware from SRM (router) firmware.
type FirmwareType string

const (
	FirmwareDSM FirmwareType = "dsm"
	FirmwareSRM FirmwareType = "srm"
)

// Firmware is identified by a monotonically increasing build integer; the
// dotted version string ("3.1", "7.2", ...) is informational but drives
// the catalog resolver's major-version matching.
type Firmware struct {
	ID      int64
	Version string
	Build   int
	Type    FirmwareType
}

// String renders the canonical "<version>-<build>" firmware string used
// in INFO's firmware key and in API responses.
func (f Firmware) String() string {
	return f.Version + "-" + strconv.Itoa(f.Build)
}

// Service is an opaque service dependency identifier (e.g. "mysql").
type Service struct {
	ID   int64
	Code string
}

// Package is the top-level entity; deleting one cascades to its Versions
// and Screenshots and removes <data>/<name>.
type Package struct {
	ID         int64
	Name       string
	AuthorID   *uuid.UUID
	Maintainers []uuid.UUID
	InsertDate time.Time
}

// Screenshot belongs to a Package.
type Screenshot struct {
	ID        int64
	PackageID int64
	Path      string
}

// Icon belongs to a Version, keyed by one of IconSizes.
type Icon struct {
	VersionID int64
	Size      int
	Path      string
}

// DisplayName is a localized name, ≤ 50 characters (spec.md §3).
type DisplayName struct {
	VersionID  int64
	LanguageID int64
	Language   string
	Value      string
}

// Description is a localized description text.
type Description struct {
	VersionID  int64
	LanguageID int64
	Language   string
	Value      string
}

// Version is owned by a Package; (package, version_number) is unique.
type Version struct {
	ID                int64
	PackageID         int64
	VersionNumber     int
	UpstreamVersion   string
	Changelog         *string
	ReportURL         *string
	Distributor       *string
	DistributorURL    *string
	Maintainer        *string
	MaintainerURL     *string
	License           *string
	InstallWizard     bool
	UpgradeWizard     bool
	Startable         *bool
	InsertDate        time.Time

	DisplayNames map[string]string // language code -> value
	Descriptions map[string]string
	Icons        map[int]string // size -> stored path
	ServiceDeps  []string       // service codes
}

// VersionString renders "<upstream_version>-<version_number>".
func (v Version) VersionString() string {
	return v.UpstreamVersion + "-" + strconv.Itoa(v.VersionNumber)
}

// Beta is the derived predicate "report_url is non-empty" (spec.md §3).
func (v Version) Beta() bool {
	return v.ReportURL != nil && *v.ReportURL != ""
}

// BuildManifest is the 1:1 owned child of a Build carrying dependency and
// conf/* data. It never outlives its Build (spec.md §9).
type BuildManifest struct {
	BuildID        int64
	Dependencies   *string
	Conflicts      *string
	ConfDeps       *string // compact JSON, insertion-order preserved
	ConfConflicts  *string
	ConfPrivilege  *string // raw JSON
	ConfResource   *string // raw JSON
}

// Build is owned by a Version.
type Build struct {
	ID             int64
	VersionID      int64
	FirmwareMinID  int64
	FirmwareMaxID  *int64
	PublisherID    *uuid.UUID
	Path           string
	Checksum       *string
	MD5            *string
	Active         bool
	InsertDate     time.Time
	Architectures  []string // architecture codes, sorted
}

// Download is an append-only accounting row.
type Download struct {
	ID             int64
	BuildID        int64
	ArchitectureID int64
	FirmwareBuild  int
	IPAddress      string
	UserAgent      string
	Date           time.Time
}
