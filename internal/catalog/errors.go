package catalog

import "fmt"

// Code identifies a catalog query failure (spec.md §7's QueryError).
type Code string

const (
	CodeMissingField  Code = "missing-field"
	CodeUnknownArch   Code = "unknown-arch"
	CodeUnknownLang   Code = "unknown-language"
	CodeInvalidBuild  Code = "invalid-build"
)

var statusOf = map[Code]int{
	CodeMissingField: 400,
	CodeUnknownArch:  422,
	CodeUnknownLang:  422,
	CodeInvalidBuild: 422,
}

// Error is the single error type Resolve returns.
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

// HTTPStatus implements the status-carrying convention used across the
// error taxonomy.
func (e *Error) HTTPStatus() int {
	if status, ok := statusOf[e.Code]; ok {
		return status
	}
	return 422
}

func newErr(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
