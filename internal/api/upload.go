package api

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/synocommunity/spkrepo/internal/auth"
	"github.com/synocommunity/spkrepo/internal/metrics"
	"github.com/synocommunity/spkrepo/internal/reconcile"
)

// uploadPackage implements POST /api/packages (spec.md §4.2, §6): it runs
// the full reconciliation procedure, then, if a signer is configured,
// signs the freshly written SPK before responding. Spec.md §4.2 step 10
// calls signing part of the same procedure; internal/reconcile keeps it
// out so this handler is the one place that decides whether a Signer is
// wired in at all.
func (s *Server) uploadPackage(c echo.Context) error {
	start := time.Now()
	status := http.StatusInternalServerError
	defer func() {
		metrics.UploadDuration.Observe(time.Since(start).Seconds())
		metrics.UploadsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	}()

	principal, err := auth.Principal(c)
	if err != nil {
		status = statusOrDefault(err, http.StatusUnauthorized)
		return err
	}
	if err := auth.RequireDeveloper(principal); err != nil {
		status = statusOrDefault(err, http.StatusForbidden)
		return err
	}

	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, s.cfg.MaxUploadBytes)
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		status = http.StatusBadRequest
		return echo.NewHTTPError(http.StatusBadRequest, "request body too large or unreadable")
	}

	result, err := s.reconciler.Reconcile(req.Context(), bytes.NewReader(raw), principal)
	if err != nil {
		status = statusOrDefault(err, http.StatusUnprocessableEntity)
		return err
	}

	if s.signer.Enabled() {
		if err := s.signBuild(req.Context(), result); err != nil {
			status = statusOrDefault(err, http.StatusInternalServerError)
			return err
		}
	}

	status = http.StatusCreated
	return c.JSON(http.StatusCreated, UploadResult{
		Package:       result.PackageName,
		Version:       result.VersionString,
		Firmware:      result.FirmwareString,
		Architectures: result.ArchitectureCodes,
	})
}

func statusOrDefault(err error, fallback int) int {
	if sc, ok := err.(statusCoder); ok {
		return sc.HTTPStatus()
	}
	return fallback
}

// signBuild signs the SPK file just written by Reconcile, in place, and
// persists the recomputed MD5 — spec.md §4.4: "Both operations recompute
// and persist Build.md5."
func (s *Server) signBuild(ctx context.Context, result *reconcile.Result) error {
	path := filepath.Join(s.cfg.DataPath, result.Build.Path)
	raw, err := os.ReadFile(path)
	if err != nil {
		return &reconcile.Error{Code: reconcile.CodeFilesystemWriteFailed, Message: err.Error()}
	}

	signed, err := s.signer.Sign(ctx, raw)
	if err != nil {
		return &reconcile.Error{Code: reconcile.CodeSignFailed, Message: err.Error()}
	}

	if err := os.WriteFile(path, signed, 0o644); err != nil {
		return &reconcile.Error{Code: reconcile.CodeFilesystemWriteFailed, Message: err.Error()}
	}

	sum := md5.Sum(signed)
	md5Hex := hex.EncodeToString(sum[:])
	if err := s.store.UpdateBuildMD5(ctx, s.store.Pool, result.Build.ID, md5Hex); err != nil {
		return err
	}
	result.Build.MD5 = &md5Hex
	return nil
}
