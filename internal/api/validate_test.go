package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValidateAgainstSchemaPreservesBody guards against the OpenAPI
// validator draining Request.Body and leaving nothing for the real
// handler to read — the bug that made every upload reach spk.Parse with
// zero bytes.
func TestValidateAgainstSchemaPreservesBody(t *testing.T) {
	s := testServer()
	s.router = loadRouter()

	var bodyAtHandler []byte
	s.echo.POST("/api/packages", func(c echo.Context) error {
		var err error
		bodyAtHandler, err = io.ReadAll(c.Request().Body)
		require.NoError(t, err)
		return c.NoContent(http.StatusCreated)
	}, validateAgainstSchema(s.router))

	payload := []byte("not actually a tar file, just needs to be non-empty")
	req := httptest.NewRequest(http.MethodPost, "/api/packages", bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, "application/octet-stream")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, payload, bodyAtHandler)
}
