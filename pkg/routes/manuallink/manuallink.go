package manuallink

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sorrel/internal/repositories/manuallink"
	"github.com/Ramsey-B/sorrel/pkg/context"
	"github.com/Ramsey-B/sorrel/pkg/models"
)

// Register registers manual link queue routes
func Register(g *echo.Group) {
	g.GET("", ListQueued)
	g.POST("/:id/resolve", Resolve)
}

// ListQueued lists contact records waiting for manual linking
func ListQueued(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	ctx, repo, err := ectoinject.GetContext[*manuallink.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	records, err := repo.ListQueued(ctx, tenantID, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, records)
}

// ResolveRequest links a queued record to a person, or drops it
type ResolveRequest struct {
	PersonID string `json:"person_id"`
	Drop     bool   `json:"drop"`
}

// Resolve closes a queued record: linked to a person or dropped
func Resolve(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	id := c.Param("id")

	actor := context.GetUserID(ctx)
	if actor == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "X-User-ID header is required to resolve a queued record")
	}

	var req ResolveRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if !req.Drop && req.PersonID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "person_id is required unless drop is true")
	}
	if req.Drop && req.PersonID != "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "person_id and drop are mutually exclusive")
	}

	ctx, repo, err := ectoinject.GetContext[*manuallink.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	status := models.ManualLinkStatusResolved
	var personID *string
	if req.Drop {
		status = models.ManualLinkStatusDropped
	} else {
		personID = &req.PersonID
	}

	if err := repo.Resolve(ctx, tenantID, id, status, personID, &actor); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": status})
}
