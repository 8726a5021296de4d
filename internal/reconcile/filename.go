package reconcile

import (
	"fmt"
	"sort"
	"strings"
)

// Filename computes the deterministic build filename of spec.md §4.2 step
// 7: "<package>.v<version_number>.f<firmware_min.build>[<arch1>-<arch2>-…].spk",
// with architecture codes sorted for a stable name regardless of the order
// they appeared in INFO's `arch` key.
func Filename(packageName string, versionNumber, firmwareMinBuild int, archCodes []string) string {
	sorted := append([]string(nil), archCodes...)
	sort.Strings(sorted)
	return fmt.Sprintf("%s.v%d.f%d[%s].spk", packageName, versionNumber, firmwareMinBuild, strings.Join(sorted, "-"))
}

// RelativePath computes the repo-relative storage path
// "<package>/<version_number>/<filename>" spec.md §4.2 step 7 and §6
// describe.
func RelativePath(packageName string, versionNumber int, filename string) string {
	return fmt.Sprintf("%s/%d/%s", packageName, versionNumber, filename)
}
