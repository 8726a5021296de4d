// Package reconcile implements the upload reconciliation procedure of
// spec.md §4.2: it takes a parsed SPK and an authenticated principal and
// turns them into Package/Version/Build/BuildManifest rows plus the
// filesystem side-effects those rows point at, all inside one serializable
// transaction (internal/store.WithTx).
package reconcile

import (
	"fmt"
	"sort"
	"strings"
)

// Code identifies the specific reconciliation failure. UploadError and
// ConflictError share this package because both are raised by the same
// procedure and dispatch on the same HTTPStatus() convention as
// internal/spk.Error (spec.md §7).
type Code string

const (
	CodeInvalidFirmware        Code = "invalid-firmware"
	CodeUnknownFirmware        Code = "unknown-firmware"
	CodeUnknownArchitecture    Code = "unknown-architecture"
	CodeInvalidVersion         Code = "invalid-version"
	CodeSignedUpload           Code = "signed-upload"
	CodeInsufficientPermission Code = "insufficient-permissions"
	CodeArchitectureConflict   Code = "architecture-conflict"
	CodeSignFailed             Code = "sign-failed"
	CodeFilesystemWriteFailed  Code = "filesystem-write-failed"
)

// statusOf maps each Code to the HTTP status named in spec.md §7.
var statusOf = map[Code]int{
	CodeInvalidFirmware:        422,
	CodeUnknownFirmware:        422,
	CodeUnknownArchitecture:    422,
	CodeInvalidVersion:         422,
	CodeSignedUpload:           422,
	CodeInsufficientPermission: 403,
	CodeArchitectureConflict:   409,
	CodeSignFailed:             500,
	CodeFilesystemWriteFailed:  500,
}

// Error is the single error type the reconciler returns.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus implements the status-carrying convention dispatched on by
// internal/api's error handler.
func (e *Error) HTTPStatus() int {
	if status, ok := statusOf[e.Code]; ok {
		return status
	}
	return 500
}

func newErr(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// conflictMessage renders the "Conflicting architectures: a, b" body
// spec.md's end-to-end scenario 2 asserts on.
func conflictMessage(codes []string) string {
	sorted := append([]string(nil), codes...)
	sort.Strings(sorted)
	return "Conflicting architectures: " + strings.Join(sorted, ", ")
}
