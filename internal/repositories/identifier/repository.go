package identifier

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

const identifierColumns = "id, tenant_id, person_id, id_type, value_raw, value_norm, source_system, created_at"

// Repository handles identifier persistence and the exact-value blocking
// index. Identifier rows are append-only; merges reparent them but nothing
// ever deletes one.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new identifier repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts identifiers, skipping rows the person already has for
// the same type and normalized value.
func (r *Repository) CreateBatch(ctx context.Context, identifiers []*models.Identifier) error {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.CreateBatch")
	defer span.End()

	if len(identifiers) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("identifiers")
	sb.Cols("id", "tenant_id", "person_id", "id_type", "value_raw", "value_norm", "source_system", "created_at")

	for _, ident := range identifiers {
		if ident.ID == "" {
			ident.ID = uuid.New().String()
		}
		ident.CreatedAt = now
		sb.Values(ident.ID, ident.TenantID, ident.PersonID, ident.IDType, ident.ValueRaw, ident.ValueNorm, ident.SourceSystem, ident.CreatedAt)
	}

	query, args := sb.Build()
	query += " ON CONFLICT (tenant_id, person_id, id_type, value_norm) DO NOTHING"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create identifiers batch")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create identifiers")
	}

	return nil
}

// ListByPerson retrieves all identifiers attached to a person
func (r *Repository) ListByPerson(ctx context.Context, tenantID string, personID string) ([]models.Identifier, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.ListByPerson")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(identifierColumns)
	sb.From("identifiers")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("person_id", personID),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var identifiers []models.Identifier
	if err := r.db.SelectContext(ctx, &identifiers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list identifiers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list identifiers")
	}

	return identifiers, nil
}

// FindPersonIDsByValue looks up the persons holding a normalized identifier
// value. Used by find-or-create to match incoming records.
func (r *Repository) FindPersonIDsByValue(ctx context.Context, tenantID string, idType models.IdentifierType, valueNorm string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.FindPersonIDsByValue")
	defer span.End()

	query := `
		SELECT DISTINCT person_id
		FROM identifiers
		WHERE tenant_id = $1 AND id_type = $2 AND value_norm = $3
	`

	var personIDs []string
	if err := r.db.SelectContext(ctx, &personIDs, query, tenantID, idType, valueNorm); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find persons by identifier value")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find persons by identifier value")
	}

	return personIDs, nil
}

// SharedCanonicalCount returns how many distinct canonical persons hold a
// normalized identifier value. Drives the soft-blacklist check in scoring.
func (r *Repository) SharedCanonicalCount(ctx context.Context, tenantID string, idType models.IdentifierType, valueNorm string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.SharedCanonicalCount")
	defer span.End()

	query := `
		SELECT COUNT(DISTINCT COALESCE(p.merged_into_person_id, p.id))
		FROM identifiers i
		JOIN persons p ON p.tenant_id = i.tenant_id AND p.id = i.person_id
		WHERE i.tenant_id = $1 AND i.id_type = $2 AND i.value_norm = $3
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, tenantID, idType, valueNorm); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count canonical holders")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count canonical holders")
	}

	return count, nil
}

// ListShared returns normalized values held by more than threshold distinct
// canonical persons. Surfaced as a data-quality signal for review.
func (r *Repository) ListShared(ctx context.Context, tenantID string, threshold int, limit int) ([]models.SharedIdentifier, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.ListShared")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT i.id_type,
		       i.value_norm,
		       COUNT(DISTINCT COALESCE(p.merged_into_person_id, p.id)) AS canonical_count
		FROM identifiers i
		JOIN persons p ON p.tenant_id = i.tenant_id AND p.id = i.person_id
		WHERE i.tenant_id = $1 AND i.value_norm <> ''
		GROUP BY i.id_type, i.value_norm
		HAVING COUNT(DISTINCT COALESCE(p.merged_into_person_id, p.id)) > $2
		ORDER BY canonical_count DESC
		LIMIT $3
	`

	var shared []models.SharedIdentifier
	if err := r.db.SelectContext(ctx, &shared, query, tenantID, threshold, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list shared identifiers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list shared identifiers")
	}

	return shared, nil
}

// Reparent moves the source person's identifiers onto the target person,
// except rows whose (id_type, value_norm) the target already holds: those
// stay attached to the retired source so uniqueness and history survive.
// Returns the moved identifier IDs for the merge log.
func (r *Repository) Reparent(ctx context.Context, tenantID string, sourcePersonID, targetPersonID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.Reparent")
	defer span.End()

	query := `
		UPDATE identifiers i
		SET person_id = $1
		WHERE i.tenant_id = $2 AND i.person_id = $3
		  AND NOT EXISTS (
			SELECT 1 FROM identifiers t
			WHERE t.tenant_id = i.tenant_id
			  AND t.person_id = $1
			  AND t.id_type = i.id_type
			  AND t.value_norm = i.value_norm
		  )
		RETURNING i.id
	`

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, targetPersonID, tenantID, sourcePersonID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_person_id": sourcePersonID, "target_person_id": targetPersonID}).Error("Failed to reparent identifiers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reparent identifiers")
	}

	return ids, nil
}

// ReparentByIDs moves specific identifier rows onto a person (merge undo).
func (r *Repository) ReparentByIDs(ctx context.Context, tenantID string, ids []string, personID string) error {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.ReparentByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("identifiers")
	sb.Set(sb.Assign("person_id", personID))
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("id", idsToAny(ids)...),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": personID, "count": len(ids)}).Error("Failed to reparent identifiers by id")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reparent identifiers")
	}

	return nil
}

// ListExactPairs enumerates canonical person pairs sharing a normalized
// email or phone value, the exact-match blocking keys.
func (r *Repository) ListExactPairs(ctx context.Context, tenantID string, limit int) ([]models.CandidatePair, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.ListExactPairs")
	defer span.End()

	if limit < 1 || limit > 5000 {
		limit = 1000
	}

	query := `
		SELECT DISTINCT i1.person_id AS person_id_a,
		       i2.person_id AS person_id_b,
		       i1.id_type || ':' || i1.value_norm AS blocking_key
		FROM identifiers i1
		JOIN identifiers i2
		  ON i2.tenant_id = i1.tenant_id
		 AND i2.id_type = i1.id_type
		 AND i2.value_norm = i1.value_norm
		 AND i1.person_id < i2.person_id
		JOIN persons pa ON pa.tenant_id = i1.tenant_id AND pa.id = i1.person_id AND pa.merged_into_person_id IS NULL
		JOIN persons pb ON pb.tenant_id = i2.tenant_id AND pb.id = i2.person_id AND pb.merged_into_person_id IS NULL
		WHERE i1.tenant_id = $1 AND i1.value_norm <> ''
		LIMIT $2
	`

	var pairs []models.CandidatePair
	if err := r.db.SelectContext(ctx, &pairs, query, tenantID, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list exact block pairs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list exact block pairs")
	}

	return pairs, nil
}

func idsToAny(ids []string) []any {
	result := make([]any, len(ids))
	for i, id := range ids {
		result[i] = id
	}
	return result
}
