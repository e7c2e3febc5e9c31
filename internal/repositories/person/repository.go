package person

import (
	"context"
	"fmt"
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

const personColumns = "id, tenant_id, display_name, first_name, last_name, name_norm, name_soundex, address_norm, locality, merged_into_person_id, created_at, updated_at"

// Repository handles person persistence. Only the merge engine may set or
// clear merged_into_person_id; everything else treats it as read-only.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new person repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new person
func (r *Repository) Create(ctx context.Context, person *models.Person) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Create")
	defer span.End()

	if person.ID == "" {
		person.ID = uuid.New().String()
	}
	person.CreatedAt = time.Now().UTC()
	person.UpdatedAt = person.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("persons")
	sb.Cols("id", "tenant_id", "display_name", "first_name", "last_name", "name_norm", "name_soundex", "address_norm", "locality", "created_at", "updated_at")
	sb.Values(person.ID, person.TenantID, person.DisplayName, person.FirstName, person.LastName, person.NameNorm, person.NameSoundex, person.AddressNorm, person.Locality, person.CreatedAt, person.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": person.ID}).Error("Failed to create person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create person")
	}

	return person, nil
}

// Get retrieves a person by ID
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(personColumns)
	sb.From("persons")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var person models.Person
	if err := r.db.GetContext(ctx, &person, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("person %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get person")
	}

	return &person, nil
}

// GetMergedInto returns the merged_into_person_id pointer for a person, or
// nil when the person is canonical. Used by the root resolution walk.
func (r *Repository) GetMergedInto(ctx context.Context, tenantID string, id string) (*string, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.GetMergedInto")
	defer span.End()

	query := `SELECT merged_into_person_id FROM persons WHERE tenant_id = $1 AND id = $2`

	var mergedInto *string
	if err := r.db.GetContext(ctx, &mergedInto, query, tenantID, id); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("person %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get merged pointer")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merged pointer")
	}

	return mergedInto, nil
}

// SetMergedInto retires a source person by pointing it at its new root.
// Fails when the source person is already retired.
func (r *Repository) SetMergedInto(ctx context.Context, tenantID string, sourceID, targetID string) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.SetMergedInto")
	defer span.End()

	query := `
		UPDATE persons
		SET merged_into_person_id = $1, updated_at = $2
		WHERE tenant_id = $3 AND id = $4 AND merged_into_person_id IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, targetID, time.Now().UTC(), tenantID, sourceID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_person_id": sourceID, "target_person_id": targetID}).Error("Failed to set merged pointer")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set merged pointer")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("person %s is not canonical", sourceID))
	}

	return nil
}

// ClearMergedInto restores a retired person to canonical (merge undo).
func (r *Repository) ClearMergedInto(ctx context.Context, tenantID string, id string) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.ClearMergedInto")
	defer span.End()

	query := `
		UPDATE persons
		SET merged_into_person_id = NULL, updated_at = $1
		WHERE tenant_id = $2 AND id = $3
	`

	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), tenantID, id); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": id}).Error("Failed to clear merged pointer")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to clear merged pointer")
	}

	return nil
}

// RepointChildren path-compresses: every person pointing at oldRoot is
// updated to point at newRoot. Returns the repointed person IDs so a merge
// log can restore them on undo.
func (r *Repository) RepointChildren(ctx context.Context, tenantID string, oldRootID, newRootID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.RepointChildren")
	defer span.End()

	query := `
		UPDATE persons
		SET merged_into_person_id = $1, updated_at = $2
		WHERE tenant_id = $3 AND merged_into_person_id = $4
		RETURNING id
	`

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, newRootID, time.Now().UTC(), tenantID, oldRootID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"old_root_id": oldRootID, "new_root_id": newRootID}).Error("Failed to repoint children")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to repoint children")
	}

	return ids, nil
}

// RepointByIDs points the given persons back at rootID (merge undo).
func (r *Repository) RepointByIDs(ctx context.Context, tenantID string, ids []string, rootID string) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.RepointByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("persons")
	sb.Set(
		sb.Assign("merged_into_person_id", rootID),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("id", idsToAny(ids)...),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"root_id": rootID, "count": len(ids)}).Error("Failed to repoint persons")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to repoint persons")
	}

	return nil
}

// LockPair takes a transaction-scoped advisory lock on an unordered pair of
// person IDs. Callers must hold an open transaction in the context and pass
// the IDs sorted so concurrent merges on the same pair cannot deadlock.
func (r *Repository) LockPair(ctx context.Context, idA, idB string) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.LockPair")
	defer span.End()

	query := `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`
	if _, err := r.db.ExecContext(ctx, query, idA, idB); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id_a": idA, "person_id_b": idB}).Error("Failed to acquire pair lock")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to acquire pair lock")
	}

	return nil
}

// ListNameBlockPairs enumerates canonical person pairs sharing a fuzzy name
// bucket (soundex of last name combined with locality).
func (r *Repository) ListNameBlockPairs(ctx context.Context, tenantID string, limit int) ([]models.CandidatePair, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.ListNameBlockPairs")
	defer span.End()

	if limit < 1 || limit > 5000 {
		limit = 1000
	}

	query := `
		SELECT p1.id AS person_id_a,
		       p2.id AS person_id_b,
		       'name:' || p1.name_soundex || ':' || COALESCE(p1.locality, '') AS blocking_key
		FROM persons p1
		JOIN persons p2
		  ON p2.tenant_id = p1.tenant_id
		 AND p2.name_soundex = p1.name_soundex
		 AND COALESCE(p2.locality, '') = COALESCE(p1.locality, '')
		 AND p1.id < p2.id
		WHERE p1.tenant_id = $1
		  AND p1.merged_into_person_id IS NULL
		  AND p2.merged_into_person_id IS NULL
		  AND p1.name_soundex IS NOT NULL
		  AND p1.name_soundex <> ''
		LIMIT $2
	`

	var pairs []models.CandidatePair
	if err := r.db.SelectContext(ctx, &pairs, query, tenantID, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list name block pairs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list name block pairs")
	}

	return pairs, nil
}

// ListTenants returns the distinct tenants with at least one person. Used by
// the background sweeper to partition its passes.
func (r *Repository) ListTenants(ctx context.Context) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.ListTenants")
	defer span.End()

	query := `SELECT DISTINCT tenant_id FROM persons ORDER BY tenant_id`

	var tenants []string
	if err := r.db.SelectContext(ctx, &tenants, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list tenants")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list tenants")
	}

	return tenants, nil
}

func idsToAny(ids []string) []any {
	result := make([]any, len(ids))
	for i, id := range ids {
		result[i] = id
	}
	return result
}
