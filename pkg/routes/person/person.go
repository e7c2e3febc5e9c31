package person

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sorrel/internal/repositories/alias"
	"github.com/Ramsey-B/sorrel/internal/repositories/identifier"
	"github.com/Ramsey-B/sorrel/internal/repositories/person"
	"github.com/Ramsey-B/sorrel/internal/repositories/relationship"
	"github.com/Ramsey-B/sorrel/pkg/context"
	"github.com/Ramsey-B/sorrel/pkg/identity"
	"github.com/Ramsey-B/sorrel/pkg/models"
)

// Register registers person routes
func Register(g *echo.Group) {
	g.POST("/resolve", ResolvePerson)
	g.GET("/:id", GetPerson)
	g.GET("/:id/canonical", GetCanonicalPerson)
	g.GET("/shared-identifiers", ListSharedIdentifiers)
}

// PersonResponse is a person with its attached facts
type PersonResponse struct {
	Person        *models.Person              `json:"person"`
	Identifiers   []models.Identifier         `json:"identifiers"`
	Aliases       []models.Alias              `json:"aliases"`
	Relationships []models.PersonRelationship `json:"relationships"`
}

// ResolvePerson finds or creates the person for a contact record
func ResolvePerson(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	var req models.FindOrCreatePersonRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*identity.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := svc.FindOrCreatePerson(ctx, tenantID, &req)
	if err != nil {
		return err
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	if result.Queued {
		status = http.StatusAccepted
	}

	return c.JSON(status, result)
}

// GetPerson gets a person with its identifiers, aliases and relationships
func GetPerson(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	id := c.Param("id")

	ctx, personRepo, err := ectoinject.GetContext[*person.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	p, err := personRepo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	ctx, identifierRepo, err := ectoinject.GetContext[*identifier.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	identifiers, err := identifierRepo.ListByPerson(ctx, tenantID, id)
	if err != nil {
		return err
	}

	ctx, aliasRepo, err := ectoinject.GetContext[*alias.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	aliases, err := aliasRepo.ListByPerson(ctx, tenantID, id)
	if err != nil {
		return err
	}

	ctx, relRepo, err := ectoinject.GetContext[*relationship.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	relationships, err := relRepo.ListByPerson(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &PersonResponse{
		Person:        p,
		Identifiers:   identifiers,
		Aliases:       aliases,
		Relationships: relationships,
	})
}

// CanonicalResponse maps a person id to its canonical root
type CanonicalResponse struct {
	PersonID          string `json:"person_id"`
	CanonicalPersonID string `json:"canonical_person_id"`
	Merged            bool   `json:"merged"`
}

// GetCanonicalPerson follows merge pointers to the canonical person id
func GetCanonicalPerson(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	id := c.Param("id")

	ctx, svc, err := ectoinject.GetContext[*identity.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rootID, err := svc.CanonicalPersonID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &CanonicalResponse{
		PersonID:          id,
		CanonicalPersonID: rootID,
		Merged:            rootID != id,
	})
}

// ListSharedIdentifiers lists identifier values held by many canonical
// persons, the data-quality view behind the shared-identifier blacklist
func ListSharedIdentifiers(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	threshold := 5
	if raw := c.QueryParam("threshold"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return httperror.NewHTTPError(http.StatusBadRequest, "threshold must be a positive integer")
		}
		threshold = parsed
	}

	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	ctx, identifierRepo, err := ectoinject.GetContext[*identifier.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	shared, err := identifierRepo.ListShared(ctx, tenantID, threshold, limit)
	if err != nil {
		return err
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"threshold": threshold,
			"count":     len(shared),
		}).Debug("Listed shared identifiers")
	}

	return c.JSON(http.StatusOK, shared)
}
