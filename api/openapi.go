// Package openapispec embeds the repository's own OpenAPI document so
// internal/api can validate incoming requests against it without relying
// on a file path that only happens to be correct from one working
// directory.
package openapispec

import _ "embed"

//go:embed openapi.yaml
var Document []byte
