package reconcile

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/labstack/gommon/random"
	"golang.org/x/sync/errgroup"

	"github.com/synocommunity/spkrepo/internal/model"
	"github.com/synocommunity/spkrepo/internal/spk"
	"github.com/synocommunity/spkrepo/internal/store"
)

var (
	versionRe  = regexp.MustCompile(`^(.*)-(\d+)$`)
	firmwareRe = regexp.MustCompile(`^(\d\.\d)-(\d{3,6})$`)
)

// Result is the success output of Reconcile: spec.md §4.2's
// "(package_name, version_string, firmware_string, [architecture_codes])".
type Result struct {
	PackageName       string
	VersionString     string
	FirmwareString    string
	ArchitectureCodes []string
	Build             *model.Build
}

// Reconciler wires the store and data directory the procedure needs; it
// holds no per-request state, matching spec.md §9's "treat the data
// directory as a process-wide singleton with an explicit init call".
type Reconciler struct {
	store    *store.Store
	dataPath string
}

func New(s *store.Store, dataPath string) *Reconciler {
	return &Reconciler{store: s, dataPath: dataPath}
}

// Reconcile runs the full upload procedure of spec.md §4.2 steps 1-9 over
// body, attributing the upload to principal. Step 10 (signing) is not
// invoked here: signing is a distinct, explicit API action (spec.md
// §4.4), so callers that want sign-on-upload call internal/signer
// themselves after a successful Reconcile and before declaring the
// upload complete to the client.
func (r *Reconciler) Reconcile(ctx context.Context, body io.ReadSeeker, principal model.User) (*Result, error) {
	parsed, err := spk.Parse(body)
	if err != nil {
		return nil, err
	}
	if parsed.Signature != nil && *parsed.Signature != "" {
		return nil, newErr(CodeSignedUpload, "")
	}

	rawSPK, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var (
		result        *Result
		createdPkgDir bool
		createdVerDir bool
		wroteBuild    bool
	)
	txErr := r.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		res, pkgDirCreated, verDirCreated, err := r.reconcileTx(ctx, tx, parsed, rawSPK, principal)
		if res != nil {
			// reconcileTx returns a result once it has reached the file
			// writes, whether or not they or the steps after them succeeded.
			result = res
			createdPkgDir, createdVerDir, wroteBuild = pkgDirCreated, verDirCreated, true
		}
		return err
	})
	if txErr != nil {
		r.cleanupOnFailure(result, createdPkgDir, createdVerDir, wroteBuild)
		return nil, txErr
	}
	return result, nil
}

// cleanupOnFailure removes filesystem state left behind by a transaction
// that wrote files but ultimately failed to commit (spec.md §4.2 step 11:
// "on any failure after file writes, remove the files created by this
// upload").
func (r *Reconciler) cleanupOnFailure(res *Result, createdPkgDir, createdVerDir, wroteBuild bool) {
	if res == nil {
		return
	}
	switch {
	case createdPkgDir:
		os.RemoveAll(filepath.Join(r.dataPath, res.PackageName))
	case createdVerDir:
		os.RemoveAll(filepath.Dir(filepath.Join(r.dataPath, res.Build.Path)))
	case wroteBuild:
		os.Remove(filepath.Join(r.dataPath, res.Build.Path))
	}
}

func (r *Reconciler) reconcileTx(ctx context.Context, tx pgx.Tx, parsed *spk.ParsedSPK, rawSPK []byte, principal model.User) (*Result, bool, bool, error) {
	archCodes, err := r.resolveArchitectures(ctx, tx, parsed.Info["arch"])
	if err != nil {
		return nil, false, false, err
	}

	firmware, err := r.resolveFirmware(ctx, tx, parsed.Info)
	if err != nil {
		return nil, false, false, err
	}

	pkg, createPackage, err := r.resolvePackage(ctx, tx, parsed.Info["package"], principal)
	if err != nil {
		return nil, false, false, err
	}

	matchVer := versionRe.FindStringSubmatch(parsed.Info["version"])
	if matchVer == nil {
		return nil, false, false, newErr(CodeInvalidVersion, "%s", parsed.Info["version"])
	}
	versionNumber, _ := strconv.Atoi(matchVer[2])

	version, createVersion, err := r.resolveVersion(ctx, tx, pkg, versionNumber, matchVer[1], parsed)
	if err != nil {
		return nil, createPackage, false, err
	}

	if !createVersion {
		existing, err := r.store.ArchitecturesForBuild(ctx, tx, version.ID, firmware.ID)
		if err != nil {
			return nil, createPackage, false, err
		}
		if conflicts := intersect(existing, archCodes); len(conflicts) > 0 {
			return nil, createPackage, false, &Error{Code: CodeArchitectureConflict, Message: conflictMessage(conflicts)}
		}
	}

	filename := Filename(pkg.Name, version.VersionNumber, firmware.Build, archCodes)
	relPath := RelativePath(pkg.Name, version.VersionNumber, filename)

	build := &model.Build{
		VersionID:     version.ID,
		FirmwareMinID: firmware.ID,
		PublisherID:   &principal.ID,
		Path:          relPath,
		Active:        false,
		Architectures: archCodes,
	}
	if checksum, ok := parsed.Info["checksum"]; ok {
		build.Checksum = &checksum
	}
	build, err = r.store.CreateBuild(ctx, tx, build)
	if err != nil {
		return nil, createPackage, createVersion, err
	}

	manifest := &model.BuildManifest{
		BuildID:       build.ID,
		Dependencies:  optionalString(parsed.Info, "install_dep_packages"),
		Conflicts:     optionalString(parsed.Info, "install_conflict_packages"),
		ConfDeps:      parsed.ConfDependencies,
		ConfConflicts: parsed.ConfConflicts,
		ConfPrivilege: parsed.ConfPrivilege,
		ConfResource:  parsed.ConfResource,
	}
	if err := r.store.UpsertBuildManifest(ctx, tx, manifest); err != nil {
		return nil, createPackage, createVersion, err
	}

	result := &Result{
		PackageName:       pkg.Name,
		VersionString:     version.VersionString(),
		FirmwareString:    firmware.String(),
		ArchitectureCodes: archCodes,
		Build:             build,
	}

	if err := r.writeFiles(createPackage, createVersion, pkg.Name, version, build, parsed, rawSPK); err != nil {
		return result, createPackage, createVersion, newErr(CodeFilesystemWriteFailed, "%v", err)
	}
	// spec.md §4.2 step 9: compute the MD5 over the bytes actually written
	// and persist it on the Build row, independent of whether a signer is
	// configured to sign it afterward.
	if err := r.store.UpdateBuildMD5(ctx, tx, build.ID, *build.MD5); err != nil {
		return result, createPackage, createVersion, err
	}
	return result, createPackage, createVersion, nil
}

func (r *Reconciler) resolveArchitectures(ctx context.Context, tx pgx.Tx, archField string) ([]string, error) {
	tokens := strings.Fields(archField)
	codes := make([]string, 0, len(tokens))
	for _, token := range tokens {
		normalized := model.NormalizeArch(token)
		a, err := r.store.FindArchitecture(ctx, tx, normalized)
		if err == store.ErrNotFound {
			return nil, newErr(CodeUnknownArchitecture, "%s", token)
		}
		if err != nil {
			return nil, err
		}
		codes = append(codes, a.Code)
	}
	return codes, nil
}

func (r *Reconciler) resolveFirmware(ctx context.Context, tx pgx.Tx, info map[string]string) (*model.Firmware, error) {
	raw, ok := info["firmware"]
	if !ok {
		raw, ok = info["os_min_ver"]
	}
	if !ok {
		return nil, newErr(CodeInvalidFirmware, "")
	}
	match := firmwareRe.FindStringSubmatch(raw)
	if match == nil {
		return nil, newErr(CodeInvalidFirmware, "%s", raw)
	}
	build, _ := strconv.Atoi(match[2])
	firmware, err := r.store.FindFirmwareByBuild(ctx, tx, build)
	if err == store.ErrNotFound {
		return nil, newErr(CodeUnknownFirmware, "%d", build)
	}
	if err != nil {
		return nil, err
	}

	if maxRaw, ok := info["os_max_ver"]; ok {
		maxMatch := firmwareRe.FindStringSubmatch(maxRaw)
		if maxMatch == nil {
			return nil, newErr(CodeInvalidFirmware, "%s", maxRaw)
		}
		maxBuild, _ := strconv.Atoi(maxMatch[2])
		maxFirmware, err := r.store.FindFirmwareByBuild(ctx, tx, maxBuild)
		if err == store.ErrNotFound {
			return nil, newErr(CodeUnknownFirmware, "%d", maxBuild)
		}
		if err != nil {
			return nil, err
		}
		if maxFirmware.Build < firmware.Build {
			return nil, newErr(CodeInvalidFirmware, "os_max_ver below os_min_ver")
		}
	}
	return firmware, nil
}

func (r *Reconciler) resolvePackage(ctx context.Context, tx pgx.Tx, name string, principal model.User) (*model.Package, bool, error) {
	pkg, err := r.store.FindPackage(ctx, tx, name)
	if err == nil {
		if principal.HasRole(model.RolePackageAdmin) {
			return pkg, false, nil
		}
		isMaintainer, merr := r.store.IsMaintainer(ctx, tx, pkg.ID, principal.ID)
		if merr != nil {
			return nil, false, merr
		}
		if !isMaintainer {
			return nil, false, newErr(CodeInsufficientPermission, "not a maintainer of %s", name)
		}
		return pkg, false, nil
	}
	if err != store.ErrNotFound {
		return nil, false, err
	}
	if !principal.HasRole(model.RolePackageAdmin) {
		return nil, false, newErr(CodeInsufficientPermission, "package_admin required to create %s", name)
	}
	pkg, err = r.store.CreatePackage(ctx, tx, name, principal.ID)
	if err != nil {
		return nil, false, err
	}
	return pkg, true, nil
}

func (r *Reconciler) resolveVersion(ctx context.Context, tx pgx.Tx, pkg *model.Package, versionNumber int, upstream string, parsed *spk.ParsedSPK) (*model.Version, bool, error) {
	existing, err := r.store.FindVersion(ctx, tx, pkg.ID, versionNumber)
	if err == nil {
		return existing, false, nil
	}
	if err != store.ErrNotFound {
		return nil, false, err
	}

	v := &model.Version{
		PackageID:       pkg.ID,
		VersionNumber:   versionNumber,
		UpstreamVersion: upstream,
		Changelog:       optionalString(parsed.Info, "changelog"),
		ReportURL:       optionalString(parsed.Info, "report_url"),
		Distributor:     optionalString(parsed.Info, "distributor"),
		DistributorURL:  optionalString(parsed.Info, "distributor_url"),
		Maintainer:      optionalString(parsed.Info, "maintainer"),
		MaintainerURL:   optionalString(parsed.Info, "maintainer_url"),
		License:         parsed.License,
		InstallWizard:   parsed.Wizards[spk.WizardInstall],
		UpgradeWizard:   parsed.Wizards[spk.WizardUpgrade],
		Startable:       startable(parsed.InfoBool),
		DisplayNames:    localizedFrom(parsed.Info, "displayname"),
		Descriptions:    localizedFrom(parsed.Info, "description"),
		Icons:           map[int]string{},
	}
	for size := range parsed.Icons {
		v.Icons[size] = RelativePath(pkg.Name, versionNumber, fmt.Sprintf("icon_%d.png", size))
	}
	if deps, ok := parsed.Info["install_dep_services"]; ok {
		v.ServiceDeps = strings.Fields(deps)
	}

	return r.store.CreateVersion(ctx, tx, v)
}

// startable mirrors original_source/spkrepo/views/api.py's precedence:
// an explicit False (from either key) wins over an explicit True.
func startable(infoBool map[string]bool) *bool {
	startableVal, hasStartable := infoBool["startable"]
	ctlStop, hasCtlStop := infoBool["ctl_stop"]
	if (hasStartable && !startableVal) || (hasCtlStop && !ctlStop) {
		v := false
		return &v
	}
	if (hasStartable && startableVal) || (hasCtlStop && ctlStop) {
		v := true
		return &v
	}
	return nil
}

func localizedFrom(info map[string]string, prefix string) map[string]string {
	out := map[string]string{}
	for key, value := range info {
		if key == prefix {
			out[model.DefaultLanguage] = value
		} else if full := prefix + "_"; strings.HasPrefix(key, full) {
			out[strings.TrimPrefix(key, full)] = value
		}
	}
	return out
}

func optionalString(info map[string]string, key string) *string {
	v, ok := info[key]
	if !ok {
		return nil
	}
	return &v
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	var out []string
	for _, v := range b {
		if set[v] {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// writeFiles persists the filesystem side-effects of spec.md §4.2 step 9:
// package/version directories, icon files, and the SPK body itself,
// writing icons concurrently the way the teacher's worker pools fan out
// independent I/O.
func (r *Reconciler) writeFiles(createPackage, createVersion bool, packageName string, version *model.Version, build *model.Build, parsed *spk.ParsedSPK, rawSPK []byte) error {
	pkgDir := filepath.Join(r.dataPath, packageName)
	verDir := filepath.Join(pkgDir, strconv.Itoa(version.VersionNumber))

	if createPackage {
		if err := os.MkdirAll(pkgDir, 0o755); err != nil {
			return err
		}
	}
	if createVersion {
		if err := os.MkdirAll(verDir, 0o755); err != nil {
			return err
		}
		group := new(errgroup.Group)
		for size, data := range parsed.Icons {
			size, data := size, data
			group.Go(func() error {
				return os.WriteFile(filepath.Join(verDir, fmt.Sprintf("icon_%d.png", size)), data, 0o644)
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}
	}

	buildPath := filepath.Join(r.dataPath, build.Path)
	tmpPath := buildPath + ".part-" + random.String(8, random.Alphanumeric)
	if err := os.WriteFile(tmpPath, rawSPK, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, buildPath); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return err
	}

	sum := md5.Sum(rawSPK)
	digest := hex.EncodeToString(sum[:])
	build.MD5 = &digest
	return nil
}
