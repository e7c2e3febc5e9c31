package syncstate

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sorrel/internal/repositories/syncstate"
	"github.com/Ramsey-B/sorrel/pkg/context"
)

// Register registers sync state routes
func Register(g *echo.Group) {
	g.GET("", ListSyncState)
	g.GET("/:source_system", GetSyncState)
}

// ListSyncState lists ingestion cursors for every source system
func ListSyncState(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	ctx, repo, err := ectoinject.GetContext[*syncstate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	states, err := repo.List(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, states)
}

// GetSyncState gets the ingestion cursor for one source system
func GetSyncState(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	sourceSystem := c.Param("source_system")

	ctx, repo, err := ectoinject.GetContext[*syncstate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	state, err := repo.Get(ctx, tenantID, sourceSystem)
	if err != nil {
		return err
	}
	if state == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "no sync state for source system")
	}

	return c.JSON(http.StatusOK, state)
}
