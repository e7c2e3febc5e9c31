package merge

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sorrel/internal/repositories/mergelog"
	"github.com/Ramsey-B/sorrel/pkg/context"
	"github.com/Ramsey-B/sorrel/pkg/merging"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/sweeper"
)

// Register registers merge routes
func Register(g *echo.Group) {
	g.POST("", MergePersons)
	g.POST("/:log_id/undo", UndoMerge)
	g.GET("/persons/:id/log", GetMergeLog)
	g.POST("/sweep", TriggerSweep)
}

// MergePersons merges the source person into the target person
func MergePersons(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	actor := context.GetUserID(ctx)
	if actor == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "X-User-ID header is required to merge")
	}

	var req models.MergeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.SourcePersonID == req.TargetPersonID {
		return httperror.NewHTTPError(http.StatusBadRequest, "source and target must be different persons")
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual merge"
	}

	result, err := engine.Merge(ctx, tenantID, req.SourcePersonID, req.TargetPersonID, merging.MergeOptions{
		Reason: reason,
		Actor:  actor,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// UndoMerge reverses a recorded merge
func UndoMerge(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	logID := c.Param("log_id")

	actor := context.GetUserID(ctx)
	if actor == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "X-User-ID header is required to undo a merge")
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entry, err := engine.Undo(ctx, tenantID, logID, actor)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entry)
}

// GetMergeLog lists merge log entries involving a person
func GetMergeLog(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	personID := c.Param("id")

	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	ctx, repo, err := ectoinject.GetContext[*mergelog.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entries, err := repo.ListByPerson(ctx, tenantID, personID, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entries)
}

// TriggerSweep runs a generate-and-merge pass for the tenant on demand
func TriggerSweep(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	ctx, sw, err := ectoinject.GetContext[*sweeper.Sweeper](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := sw.SweepTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
