package alias

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

const aliasColumns = "id, tenant_id, person_id, name, name_norm, source_system, first_seen_at, last_seen_at"

// Repository handles alias persistence. Aliases are append-only; observing a
// known variant again bumps last_seen_at.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new alias repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Record upserts an observed name variant for a person.
func (r *Repository) Record(ctx context.Context, alias *models.Alias) error {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.Record")
	defer span.End()

	if alias.ID == "" {
		alias.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	alias.FirstSeenAt = now
	alias.LastSeenAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("aliases")
	sb.Cols("id", "tenant_id", "person_id", "name", "name_norm", "source_system", "first_seen_at", "last_seen_at")
	sb.Values(alias.ID, alias.TenantID, alias.PersonID, alias.Name, alias.NameNorm, alias.SourceSystem, alias.FirstSeenAt, alias.LastSeenAt)

	query, args := sb.Build()
	query += " ON CONFLICT (tenant_id, person_id, name_norm, source_system) DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": alias.PersonID}).Error("Failed to record alias")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record alias")
	}

	return nil
}

// ListByPerson retrieves all aliases observed for a person
func (r *Repository) ListByPerson(ctx context.Context, tenantID string, personID string) ([]models.Alias, error) {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.ListByPerson")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(aliasColumns)
	sb.From("aliases")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("person_id", personID),
	)
	sb.OrderBy("last_seen_at DESC")

	query, args := sb.Build()
	var aliases []models.Alias
	if err := r.db.SelectContext(ctx, &aliases, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list aliases")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list aliases")
	}

	return aliases, nil
}

// Reparent moves the source person's aliases onto the target person,
// skipping variants the target already holds from the same source system.
// Returns the moved alias IDs for the merge log.
func (r *Repository) Reparent(ctx context.Context, tenantID string, sourcePersonID, targetPersonID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.Reparent")
	defer span.End()

	query := `
		UPDATE aliases a
		SET person_id = $1
		WHERE a.tenant_id = $2 AND a.person_id = $3
		  AND NOT EXISTS (
			SELECT 1 FROM aliases t
			WHERE t.tenant_id = a.tenant_id
			  AND t.person_id = $1
			  AND t.name_norm = a.name_norm
			  AND t.source_system = a.source_system
		  )
		RETURNING a.id
	`

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, targetPersonID, tenantID, sourcePersonID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_person_id": sourcePersonID, "target_person_id": targetPersonID}).Error("Failed to reparent aliases")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reparent aliases")
	}

	return ids, nil
}

// ReparentByIDs moves specific alias rows onto a person (merge undo).
func (r *Repository) ReparentByIDs(ctx context.Context, tenantID string, ids []string, personID string) error {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.ReparentByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("aliases")
	sb.Set(sb.Assign("person_id", personID))
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("id", idsToAny(ids)...),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": personID, "count": len(ids)}).Error("Failed to reparent aliases by id")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reparent aliases")
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
