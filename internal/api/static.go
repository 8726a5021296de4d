package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/labstack/echo/v4"
)

// hiddenPatterns are never served under /nas/<path>, even if they exist
// under DataPath: dotfiles and the ".part-<random>" names internal/reconcile
// writes through before the atomic rename onto a build's final Path
// (reconcile.go's writeFiles names them "<path>.part-" + an 8-char
// random suffix, never a bare ".part").
var hiddenPatterns = []glob.Glob{
	glob.MustCompile(".*", '/'),
	glob.MustCompile("*.part-*", '/'),
	glob.MustCompile("*.tmp", '/'),
	glob.MustCompile("**/.*", '/'),
	glob.MustCompile("**/*.part-*", '/'),
	glob.MustCompile("**/*.tmp", '/'),
}

// serveStatic implements GET /nas/<path> (spec.md §6): a static file
// server rooted at the data directory, used by download redirects and by
// appliances fetching screenshots/icons directly. download.go's redirect
// target and this handler agree on the same "/nas/<repo-relative-path>"
// shape.
func (s *Server) serveStatic(c echo.Context) error {
	rel := strings.TrimPrefix(c.Request().URL.Path, "/nas/")
	if rel == "" {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	clean := filepath.Clean("/" + rel)[1:]
	if clean == "." || strings.HasPrefix(clean, "..") {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	for _, pattern := range hiddenPatterns {
		if pattern.Match(clean) {
			return echo.NewHTTPError(http.StatusNotFound)
		}
	}
	return c.File(filepath.Join(s.cfg.DataPath, clean))
}
