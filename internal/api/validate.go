package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"
	"github.com/labstack/echo/v4"

	openapispec "github.com/synocommunity/spkrepo/api"
)

// loadRouter parses the embedded OpenAPI document into a router capable of
// matching an *http.Request back to its documented operation; New wires it
// once at startup and panics on a malformed document, the same way a
// missing template or mis-typed SQL migration would fail fast at boot.
func loadRouter() routers.Router {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapispec.Document)
	if err != nil {
		panic(fmt.Errorf("api: parsing embedded openapi document: %w", err))
	}
	if err := doc.Validate(loader.Context); err != nil {
		panic(fmt.Errorf("api: invalid openapi document: %w", err))
	}
	router, err := legacyrouter.NewRouter(doc)
	if err != nil {
		panic(fmt.Errorf("api: building openapi router: %w", err))
	}
	return router
}

// validateAgainstSchema is applied only to /api/packages (spec.md §6's
// structured JSON surface); /nas/* is form-encoded legacy appliance
// traffic the OpenAPI document doesn't attempt to describe request bodies
// for, so it stays outside this middleware's scope.
//
// openapi3filter.ValidateRequest drains Request.Body to validate it
// against the declared requestBody schema and never restores it, so the
// body is buffered here first and the request re-armed with a fresh
// reader before calling next — otherwise uploadPackage would read zero
// bytes from an already-consumed body.
func validateAgainstSchema(router routers.Router) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			raw, err := io.ReadAll(req.Body)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "unreadable request body")
			}
			req.Body = io.NopCloser(bytes.NewReader(raw))

			route, pathParams, err := router.FindRoute(req)
			if err != nil {
				return echo.NewHTTPError(http.StatusNotFound, err.Error())
			}
			input := &openapi3filter.RequestValidationInput{
				Request:    req,
				PathParams: pathParams,
				Route:      route,
				// The basicAuth credential is resolved by auth.Middleware and
				// checked by the handler, so the validator does not check it.
				Options: &openapi3filter.Options{AuthenticationFunc: openapi3filter.NoopAuthenticationFunc},
			}
			validateErr := openapi3filter.ValidateRequest(req.Context(), input)
			req.Body = io.NopCloser(bytes.NewReader(raw))
			if validateErr != nil {
				return echo.NewHTTPError(http.StatusBadRequest, validateErr.Error())
			}
			return next(c)
		}
	}
}
