package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/synocommunity/spkrepo/internal/metrics"
	"github.com/synocommunity/spkrepo/internal/model"
	"github.com/synocommunity/spkrepo/internal/store"
)

// downloadBuild implements GET /nas/download/{arch_id}/{fw_build}/{build_id}
// (spec.md §4.5): validates the request against the build's state, records
// the download, and redirects to the static file.
func (s *Server) downloadBuild(c echo.Context) error {
	buildID, err := strconv.ParseInt(c.Param("buildID"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed build id")
	}
	fwBuild, err := strconv.Atoi(c.Param("fwBuild"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed firmware build")
	}
	archID, err := strconv.ParseInt(c.Param("archID"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed architecture id")
	}

	ctx := c.Request().Context()

	build, err := s.store.FindBuildByID(ctx, s.store.Pool, buildID)
	if err != nil {
		if err == store.ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "build not found")
		}
		return err
	}
	if !build.Active {
		return echo.NewHTTPError(http.StatusForbidden, "build is not active")
	}

	arch, err := s.store.FindArchitectureByID(ctx, s.store.Pool, archID)
	if err != nil {
		if err == store.ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "architecture not found")
		}
		return err
	}
	if !containsArch(build.Architectures, arch.Code) {
		return echo.NewHTTPError(http.StatusBadRequest, "architecture not in build")
	}

	firmwareMin, err := s.store.FindFirmwareByID(ctx, s.store.Pool, build.FirmwareMinID)
	if err != nil {
		return err
	}
	if fwBuild < firmwareMin.Build {
		return echo.NewHTTPError(http.StatusBadRequest, "firmware build below firmware_min")
	}
	if build.FirmwareMaxID != nil {
		firmwareMax, err := s.store.FindFirmwareByID(ctx, s.store.Pool, *build.FirmwareMaxID)
		if err != nil {
			return err
		}
		if fwBuild > firmwareMax.Build {
			return echo.NewHTTPError(http.StatusBadRequest, "firmware build above firmware_max")
		}
	}

	download := &model.Download{
		BuildID:        build.ID,
		ArchitectureID: arch.ID,
		FirmwareBuild:  fwBuild,
		IPAddress:      c.RealIP(),
		UserAgent:      c.Request().UserAgent(),
	}
	if err := s.store.RecordDownload(ctx, s.store.Pool, download); err != nil {
		return err
	}
	metrics.DownloadsTotal.WithLabelValues(arch.Code).Inc()

	return c.Redirect(http.StatusFound, dataPathURL(build.Path))
}

func containsArch(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func dataPathURL(relPath string) string {
	return "/nas/" + relPath
}
