// Package api wires internal/reconcile, internal/catalog, internal/signer
// and internal/auth onto the HTTP surface named in spec.md §6: the four
// routes POST /api/packages, POST/GET /nas/, GET /nas/download/*, and
// GET /nas/<path>.
package api

//go:generate go run github.com/deepmap/oapi-codegen/cmd/oapi-codegen --package api --generate types -o types.gen.go ../../api/openapi.yaml

import (
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/routers"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/synocommunity/spkrepo/internal/auth"
	"github.com/synocommunity/spkrepo/internal/catalog"
	"github.com/synocommunity/spkrepo/internal/config"
	"github.com/synocommunity/spkrepo/internal/metrics"
	"github.com/synocommunity/spkrepo/internal/reconcile"
	"github.com/synocommunity/spkrepo/internal/signer"
	"github.com/synocommunity/spkrepo/internal/store"
)

// Server bundles the collaborators every handler needs.
type Server struct {
	echo       *echo.Echo
	store      *store.Store
	reconciler *reconcile.Reconciler
	resolver   *catalog.Resolver
	signer     *signer.Signer
	cfg        config.Config
	log        *logrus.Logger
	router     routers.Router
}

// New builds the routed echo.Echo instance. cfg.DataPath backs both the
// reconciler's file writes and the static file server; resolver and
// reconciler share the same *store.Store instance the caller opened.
func New(cfg config.Config, s *store.Store, log *logrus.Logger) *Server {
	sign := signer.New(cfg.GnupgPath, cfg.GnupgTimestampURL, cfg.GnupgFingerprint)
	srv := &Server{
		echo:       echo.New(),
		store:      s,
		reconciler: reconcile.New(s, cfg.DataPath),
		resolver:   catalog.New(s, ttlSeconds(cfg.CacheTTLSeconds), baseURL(cfg), sign),
		signer:     sign,
		cfg:        cfg,
		log:        log,
		router:     loadRouter(),
	}
	srv.echo.HideBanner = true
	srv.echo.HTTPErrorHandler = srv.handleError
	srv.echo.Use(middleware.Recover())
	srv.echo.Use(middleware.RequestID())
	srv.echo.Use(requestLogger(log))
	srv.echo.Use(auth.Middleware(s))

	srv.echo.POST("/api/packages", srv.uploadPackage, validateAgainstSchema(srv.router))
	srv.echo.POST("/nas/", srv.queryCatalog)
	srv.echo.GET("/nas/", srv.queryCatalog)
	srv.echo.GET("/nas/download/:archID/:fwBuild/:buildID", srv.downloadBuild)
	srv.echo.GET("/nas/*", srv.serveStatic)
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)
	srv.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return srv
}

// Start blocks serving on cfg.ListenAddr.
func (s *Server) Start() error {
	return s.echo.Start(s.cfg.ListenAddr)
}

// Echo exposes the underlying router, used by tests that want httptest
// without a real listening socket.
func (s *Server) Echo() *echo.Echo { return s.echo }

// statusCoder is the HTTPStatus() int convention every typed error in
// internal/spk, internal/reconcile, internal/catalog and internal/auth
// implements (spec.md §7).
type statusCoder interface {
	HTTPStatus() int
}

// handleError dispatches any error value carrying a statusCoder to its
// declared HTTP status, renders an *echo.HTTPError with its own code, and
// answers anything else (network errors, panics recovered upstream, etc)
// with a 500.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if sc, ok := err.(statusCoder); ok {
		if jsonErr := c.JSON(sc.HTTPStatus(), echo.Map{"error": err.Error()}); jsonErr != nil {
			s.log.WithError(jsonErr).Error("api: failed writing error response")
		}
		return
	}
	if he, ok := err.(*echo.HTTPError); ok {
		c.JSON(he.Code, echo.Map{"error": he.Message}) //nolint:errcheck
		return
	}
	s.log.WithError(err).Error("api: unhandled error")
	c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"}) //nolint:errcheck
}

func ttlSeconds(n int) time.Duration { return time.Duration(n) * time.Second }

func baseURL(cfg config.Config) string { return cfg.BaseURL }

func requestLogger(log *logrus.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			entry := log.WithFields(logrus.Fields{
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
				"method":     c.Request().Method,
				"path":       c.Request().URL.Path,
				"status":     c.Response().Status,
			})
			if err != nil {
				entry.WithError(err).Warn("api: request error")
			} else {
				entry.Debug("api: request")
			}
			return err
		}
	}
}
