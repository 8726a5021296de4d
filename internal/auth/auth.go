// Package auth resolves the Basic-auth credential accepted at the HTTP
// boundary (spec.md §6: "the api-key is the username, password is
// ignored") into an internal/model.User and the role predicates the
// reconciler and admin actions consume.
package auth

import "github.com/synocommunity/spkrepo/internal/model"

// Code identifies why authentication or authorization failed (spec.md
// §7's AuthError).
type Code string

const (
	CodeMissingKey   Code = "missing-key"
	CodeInvalidKey   Code = "invalid-key"
	CodeNotDeveloper Code = "not-developer"
	CodeInsufficient Code = "insufficient-permissions"
)

var statusOf = map[Code]int{
	CodeMissingKey:   401,
	CodeInvalidKey:   401,
	CodeNotDeveloper: 403,
	CodeInsufficient: 403,
}

// Error is the single error type this package and its callers return.
type Error struct {
	Code Code
}

func (e *Error) Error() string { return string(e.Code) }

// HTTPStatus implements the status-carrying convention used across the
// error taxonomy (spec.md §7).
func (e *Error) HTTPStatus() int {
	if status, ok := statusOf[e.Code]; ok {
		return status
	}
	return 401
}

func newErr(code Code) *Error { return &Error{Code: code} }

// ErrMissingKey is returned when the request carries no Basic credential
// at all.
var ErrMissingKey = newErr(CodeMissingKey)

// ErrInvalidKey is returned when the Basic username does not match any
// active User's api_key.
var ErrInvalidKey = newErr(CodeInvalidKey)

// RequireDeveloper fails closed unless principal holds the developer
// role, the minimum bar for POSTing to /api/packages (spec.md §6).
func RequireDeveloper(principal model.User) error {
	if !principal.HasRole(model.RoleDeveloper) {
		return newErr(CodeNotDeveloper)
	}
	return nil
}

// RequireAdmin fails closed unless principal holds the admin role. No
// route or command in this repository calls it at present; the admin CLI
// commands (resync included) run without a principal.
func RequireAdmin(principal model.User) error {
	if !principal.HasRole(model.RoleAdmin) {
		return newErr(CodeInsufficient)
	}
	return nil
}
