package relationship

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

const relationshipColumns = "id, tenant_id, person_id, relationship_type, related_type, related_id, source_system, data, created_at, updated_at"

// Repository handles person relationship rows (person to place, animal,
// request). The merge engine repoints them wholesale; their meaning belongs
// to downstream consumers.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new relationship repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new person relationship
func (r *Repository) Create(ctx context.Context, rel *models.PersonRelationship) (*models.PersonRelationship, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.Create")
	defer span.End()

	if rel.ID == "" {
		rel.ID = uuid.New().String()
	}
	rel.CreatedAt = time.Now().UTC()
	rel.UpdatedAt = rel.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("person_relationships")
	sb.Cols("id", "tenant_id", "person_id", "relationship_type", "related_type", "related_id", "source_system", "data", "created_at", "updated_at")
	sb.Values(rel.ID, rel.TenantID, rel.PersonID, rel.RelationshipType, rel.RelatedType, rel.RelatedID, rel.SourceSystem, rel.Data, rel.CreatedAt, rel.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"relationship_id": rel.ID}).Error("Failed to create relationship")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create relationship")
	}

	return rel, nil
}

// ListByPerson retrieves relationships attached to a person
func (r *Repository) ListByPerson(ctx context.Context, tenantID string, personID string) ([]models.PersonRelationship, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.ListByPerson")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(relationshipColumns)
	sb.From("person_relationships")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("person_id", personID),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var rels []models.PersonRelationship
	if err := r.db.SelectContext(ctx, &rels, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list relationships")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list relationships")
	}

	return rels, nil
}

// Reparent moves all relationships from a source person to a target person.
// Returns the moved relationship IDs for the merge log.
func (r *Repository) Reparent(ctx context.Context, tenantID string, sourcePersonID, targetPersonID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.Reparent")
	defer span.End()

	query := `
		UPDATE person_relationships
		SET person_id = $1, updated_at = $2
		WHERE tenant_id = $3 AND person_id = $4
		RETURNING id
	`

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, targetPersonID, time.Now().UTC(), tenantID, sourcePersonID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_person_id": sourcePersonID, "target_person_id": targetPersonID}).Error("Failed to reparent relationships")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reparent relationships")
	}

	return ids, nil
}

// ReparentByIDs moves specific relationship rows onto a person (merge undo).
func (r *Repository) ReparentByIDs(ctx context.Context, tenantID string, ids []string, personID string) error {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.ReparentByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("person_relationships")
	sb.Set(
		sb.Assign("person_id", personID),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("id", idsToAny(ids)...),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": personID, "count": len(ids)}).Error("Failed to reparent relationships by id")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reparent relationships")
	}

	return nil
}

func idsToAny(ids []string) []any {
	result := make([]any, len(ids))
	for i, id := range ids {
		result[i] = id
	}
	return result
}
