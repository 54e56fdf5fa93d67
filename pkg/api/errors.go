package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/machinepool"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/orchestrator"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/quota"
)

// mapOrchestratorError maps pkg/orchestrator's error kinds to HTTP error
// responses.
func mapOrchestratorError(err error) *echo.HTTPError {
	var validErr *orchestrator.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}

	var authErr *orchestrator.AuthError
	if errors.As(err, &authErr) {
		return echo.NewHTTPError(http.StatusForbidden, authErr.Error())
	}

	var quotaErr *quota.Error
	if errors.As(err, &quotaErr) {
		return echo.NewHTTPError(http.StatusTooManyRequests, quotaErr.Error())
	}

	var exhausted *machinepool.ExhaustedError
	if errors.As(err, &exhausted) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, exhausted.Error())
	}

	if errors.Is(err, orchestrator.ErrAgentNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "agent not found")
	}
	if errors.Is(err, orchestrator.ErrAgentNotReady) || errors.Is(err, orchestrator.ErrNotForkable) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if errors.Is(err, orchestrator.ErrSnapshotMissing) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if errors.Is(err, orchestrator.ErrProvisioningFailed) ||
		errors.Is(err, orchestrator.ErrSnapshotRestoreFailed) ||
		errors.Is(err, orchestrator.ErrStartFailed) ||
		errors.Is(err, orchestrator.ErrGitFailure) ||
		errors.Is(err, orchestrator.ErrAssistantFailure) {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if errors.Is(err, orchestrator.ErrCancelled) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	slog.Error("api: unexpected orchestrator error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
