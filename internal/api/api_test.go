package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synocommunity/spkrepo/internal/config"
)

func testServer() *Server {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	return &Server{echo: echo.New(), log: log}
}

type fakeStatusErr struct{ status int }

func (e *fakeStatusErr) Error() string   { return "boom" }
func (e *fakeStatusErr) HTTPStatus() int { return e.status }

func TestHandleErrorDispatchesStatusCoder(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	s.handleError(&fakeStatusErr{status: 409}, c)
	assert.Equal(t, 409, rec.Code)
	assert.Contains(t, rec.Body.String(), "boom")
}

func TestHandleErrorFallsBackToEchoHTTPError(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	s.handleError(echo.NewHTTPError(http.StatusBadRequest, "nope"), c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleErrorDefaultsToInternalError(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	s.handleError(assert.AnError, c)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleErrorNoopWhenAlreadyCommitted(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)
	require.NoError(t, c.NoContent(http.StatusOK))

	s.handleError(&fakeStatusErr{status: 409}, c)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusOrDefaultPrefersStatusCoder(t *testing.T) {
	assert.Equal(t, 409, statusOrDefault(&fakeStatusErr{status: 409}, 500))
}

func TestStatusOrDefaultFallsBack(t *testing.T) {
	assert.Equal(t, 500, statusOrDefault(assert.AnError, 500))
}

func TestContainsArch(t *testing.T) {
	assert.True(t, containsArch([]string{"noarch", "qoriq"}, "qoriq"))
	assert.False(t, containsArch([]string{"noarch"}, "qoriq"))
	assert.False(t, containsArch(nil, "qoriq"))
}

func TestDataPathURL(t *testing.T) {
	assert.Equal(t, "/nas/nzbget/2/nzbget.spk", dataPathURL("nzbget/2/nzbget.spk"))
}

func TestServeStaticServesFileUnderDataPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nzbget", "2"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nzbget", "2", "pkg.spk"), []byte("payload"), 0o644))

	s := testServer()
	s.cfg = config.Config{DataPath: dir}
	s.echo.GET("/nas/*", s.serveStatic)

	req := httptest.NewRequest(http.MethodGet, "/nas/nzbget/2/pkg.spk", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "payload", rec.Body.String())
}

func TestServeStaticRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("private"), 0o644))

	s := testServer()
	s.cfg = config.Config{DataPath: dir}
	s.echo.GET("/nas/*", s.serveStatic)

	req := httptest.NewRequest(http.MethodGet, "/nas/../../"+filepath.Base(secret), nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestServeStaticRejectsInFlightTempFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nzbget", "2"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nzbget", "2", "pkg.spk.part-Ab3dKq9Z"), []byte("partial"), 0o644))

	s := testServer()
	s.cfg = config.Config{DataPath: dir}
	s.echo.GET("/nas/*", s.serveStatic)

	req := httptest.NewRequest(http.MethodGet, "/nas/nzbget/2/pkg.spk.part-Ab3dKq9Z", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeStaticRejectsEmptyPath(t *testing.T) {
	s := testServer()
	s.cfg = config.Config{DataPath: t.TempDir()}
	s.echo.GET("/nas/*", s.serveStatic)

	req := httptest.NewRequest(http.MethodGet, "/nas/", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
