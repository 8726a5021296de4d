package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/synocommunity/spkrepo/internal/metrics"
)

// queryCatalog implements POST/GET /nas/ (spec.md §4.3, §6): the
// appliance-facing catalog query. Fields arrive as form values whichever
// verb the appliance uses.
func (s *Server) queryCatalog(c echo.Context) error {
	archRaw := c.FormValue("arch")
	buildRaw := c.FormValue("build")
	language := c.FormValue("language")
	majorRaw := c.FormValue("major")
	beta := c.FormValue("package_update_channel") == "beta"

	query, err := s.resolver.Normalize(c.Request().Context(), archRaw, buildRaw, majorRaw, language, beta)
	if err != nil {
		return err
	}

	start := time.Now()
	result, cacheHit, err := s.resolver.ResolveCached(c.Request().Context(), query)
	metrics.CatalogQueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	if cacheHit {
		metrics.CatalogQueriesTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.CatalogQueriesTotal.WithLabelValues("miss").Inc()
	}

	if result.Envelope {
		return c.JSON(http.StatusOK, CatalogEnvelope{
			Packages: result.Packages,
			Keyrings: result.Keyrings,
		})
	}
	return c.JSON(http.StatusOK, result.Packages)
}
