package matchcandidate

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sorrel/internal/repositories/matchcandidate"
	"github.com/Ramsey-B/sorrel/pkg/context"
	"github.com/Ramsey-B/sorrel/pkg/matching"
	"github.com/Ramsey-B/sorrel/pkg/models"
)

// Register registers match candidate routes
func Register(g *echo.Group) {
	g.GET("", ListMatchCandidates)
	g.GET("/:id", GetMatchCandidate)
	g.POST("/generate", GenerateCandidates)
	g.POST("/:id/accept", AcceptMatchCandidate)
	g.POST("/:id/reject", RejectMatchCandidate)
}

// ListMatchCandidates lists pending candidates for review, highest score first
func ListMatchCandidates(c echo.Context) error {
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

	ctx, repo, err := ectoinject.GetContext[*matchcandidate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidates, err := repo.ListPending(ctx, tenantID, limit)
	if err != nil {
		return err
	}

	counts, err := repo.CountByStatus(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &models.MatchCandidateListResponse{
		Items:  candidates,
		Counts: counts,
	})
}

// GetMatchCandidate gets a match candidate by id
func GetMatchCandidate(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*matchcandidate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidate, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, candidate)
}

// GenerateCandidates triggers one bounded blocking pass for the tenant
func GenerateCandidates(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	limit := 5000
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	rescore := false
	if raw := c.QueryParam("rescore"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "rescore must be a boolean")
		}
		rescore = parsed
	}

	ctx, svc, err := ectoinject.GetContext[*matching.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := svc.GenerateCandidates(ctx, tenantID, limit, rescore)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// AcceptMatchCandidate merges a reviewed candidate pair
func AcceptMatchCandidate(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	id := c.Param("id")

	reviewer := context.GetUserID(ctx)
	if reviewer == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "X-User-ID header is required to accept a candidate")
	}

	ctx, svc, err := ectoinject.GetContext[*matching.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := svc.Accept(ctx, tenantID, id, reviewer)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// RejectMatchCandidate closes a candidate without merging
func RejectMatchCandidate(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	id := c.Param("id")

	reviewer := context.GetUserID(ctx)
	if reviewer == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "X-User-ID header is required to reject a candidate")
	}

	ctx, svc, err := ectoinject.GetContext[*matching.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := svc.Reject(ctx, tenantID, id, reviewer); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "rejected"})
}
