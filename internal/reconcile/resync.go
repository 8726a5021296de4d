package reconcile

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v4"

	"github.com/synocommunity/spkrepo/internal/model"
	"github.com/synocommunity/spkrepo/internal/spk"
)

// Resync re-applies spec.md §4.2 steps 3-8 over an already-persisted
// Build: it re-opens the file at its stored path, re-parses it, and
// refreshes the Version's localized names/descriptions/icons/service
// deps, the Build's architectures and firmware, and its BuildManifest.
// Resync never creates or deletes Packages, Versions, or Builds. It does
// no authorization check of its own; its caller, the `spkrepod resync`
// command, runs with direct database access and checks no principal.
func (r *Reconciler) Resync(ctx context.Context, buildID int64) error {
	return r.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return r.resyncTx(ctx, tx, buildID)
	})
}

func (r *Reconciler) resyncTx(ctx context.Context, tx pgx.Tx, buildID int64) error {
	build, err := r.store.FindBuildByID(ctx, tx, buildID)
	if err != nil {
		return err
	}
	version, err := r.store.FindVersionByID(ctx, tx, build.VersionID)
	if err != nil {
		return err
	}
	pkg, err := r.store.FindPackageByID(ctx, tx, version.PackageID)
	if err != nil {
		return err
	}

	buildPath := filepath.Join(r.dataPath, build.Path)
	f, err := os.Open(buildPath)
	if err != nil {
		return newErr(CodeFilesystemWriteFailed, "%v", err)
	}
	parsed, err := spk.Parse(f)
	f.Close()
	if err != nil {
		return err
	}

	archCodes, err := r.resolveArchitectures(ctx, tx, parsed.Info["arch"])
	if err != nil {
		return err
	}
	firmware, err := r.resolveFirmware(ctx, tx, parsed.Info)
	if err != nil {
		return err
	}

	applyVersionFields(version, pkg.Name, parsed)
	if err := r.store.ReplaceVersionDetails(ctx, tx, version); err != nil {
		return err
	}

	if err := r.store.ReplaceBuildArchitectures(ctx, tx, build.ID, archCodes); err != nil {
		return err
	}
	if err := r.store.UpdateBuildFirmware(ctx, tx, build.ID, firmware.ID); err != nil {
		return err
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
		return err
	}

	verDir := filepath.Join(r.dataPath, pkg.Name, strconv.Itoa(version.VersionNumber))
	for size, data := range parsed.Icons {
		if err := os.WriteFile(filepath.Join(verDir, fmt.Sprintf("icon_%d.png", size)), data, 0o644); err != nil {
			return newErr(CodeFilesystemWriteFailed, "%v", err)
		}
	}

	raw, err := os.ReadFile(buildPath)
	if err != nil {
		return newErr(CodeFilesystemWriteFailed, "%v", err)
	}
	sum := md5.Sum(raw)
	return r.store.UpdateBuildMD5(ctx, tx, build.ID, hex.EncodeToString(sum[:]))
}

func applyVersionFields(version *model.Version, pkgName string, parsed *spk.ParsedSPK) {
	version.Changelog = optionalString(parsed.Info, "changelog")
	version.ReportURL = optionalString(parsed.Info, "report_url")
	version.Distributor = optionalString(parsed.Info, "distributor")
	version.DistributorURL = optionalString(parsed.Info, "distributor_url")
	version.Maintainer = optionalString(parsed.Info, "maintainer")
	version.MaintainerURL = optionalString(parsed.Info, "maintainer_url")
	version.License = parsed.License
	version.InstallWizard = parsed.Wizards[spk.WizardInstall]
	version.UpgradeWizard = parsed.Wizards[spk.WizardUpgrade]
	version.Startable = startable(parsed.InfoBool)
	version.DisplayNames = localizedFrom(parsed.Info, "displayname")
	version.Descriptions = localizedFrom(parsed.Info, "description")
	version.Icons = map[int]string{}
	for size := range parsed.Icons {
		version.Icons[size] = RelativePath(pkgName, version.VersionNumber, fmt.Sprintf("icon_%d.png", size))
	}
	if deps, ok := parsed.Info["install_dep_services"]; ok {
		version.ServiceDeps = strings.Fields(deps)
	} else {
		version.ServiceDeps = nil
	}
}
