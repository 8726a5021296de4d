// Types for the schemas of api/openapi.yaml, written by hand in the
// naming and struct-tag style oapi-codegen uses (the go:generate
// directive in server.go names that generator); the catalog types are
// aliases of internal/catalog's rather than generated structs.
package api

import "github.com/synocommunity/spkrepo/internal/catalog"

// UploadResult is components.schemas.UploadResult.
type UploadResult struct {
	Package       string   `json:"package"`
	Version       string   `json:"version"`
	Firmware      string   `json:"firmware"`
	Architectures []string `json:"architectures"`
}

// CatalogEntry is components.schemas.CatalogEntry; the wire shape is
// defined once, in internal/catalog, since that package is what renders
// it from store rows.
type CatalogEntry = catalog.Entry

// CatalogEnvelope is the `build >= 5004` branch of components.schemas.CatalogResponse.
type CatalogEnvelope = catalog.Envelope
