package matchcandidate

import (
	"context"
	"encoding/json"
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

const candidateColumns = "id, tenant_id, person_id_a, person_id_b, blocking_key, score, agreement_vector, status, created_at, updated_at, resolved_at, resolved_by"

// Repository handles match candidate persistence. Pairs are stored ordered
// (person_id_a < person_id_b) with a unique constraint, so regeneration
// cannot duplicate a pending candidate.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts pending candidates for the given pairs, skipping pairs
// that already have any candidate row. With rescore set, pairs whose existing
// candidate is in a terminal state (rejected, merged, auto_merged) are
// re-opened as unscored pending candidates instead of skipped; pairs that are
// already pending are left untouched either way. Returns the number of rows
// inserted or re-opened.
func (r *Repository) CreateBatch(ctx context.Context, tenantID string, pairs []models.CandidatePair, rescore bool) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.CreateBatch")
	defer span.End()

	if len(pairs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("match_candidates")
	sb.Cols("id", "tenant_id", "person_id_a", "person_id_b", "blocking_key", "status", "created_at", "updated_at")

	for _, pair := range pairs {
		a, b := pair.PersonIDA, pair.PersonIDB
		if b < a {
			a, b = b, a
		}
		sb.Values(uuid.New().String(), tenantID, a, b, pair.BlockingKey, models.MatchCandidateStatusPending, now, now)
	}

	query, args := sb.Build()
	if rescore {
		query += fmt.Sprintf(` ON CONFLICT (tenant_id, person_id_a, person_id_b) DO UPDATE SET
			status = '%s',
			score = NULL,
			agreement_vector = NULL,
			resolved_at = NULL,
			resolved_by = NULL,
			blocking_key = EXCLUDED.blocking_key,
			updated_at = EXCLUDED.updated_at
			WHERE match_candidates.status <> '%s'`,
			models.MatchCandidateStatusPending, models.MatchCandidateStatusPending)
	} else {
		query += " ON CONFLICT (tenant_id, person_id_a, person_id_b) DO NOTHING"
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create match candidates batch")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create match candidates")
	}

	inserted, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{"pairs": len(pairs), "inserted": inserted, "rescore": rescore}).Debug("Created match candidates batch")
	return int(inserted), nil
}

// Get retrieves a match candidate by ID
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns)
	sb.From("match_candidates")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var candidate models.MatchCandidate
	if err := r.db.GetContext(ctx, &candidate, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("match candidate %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match candidate")
	}

	return &candidate, nil
}

// GetByPair gets an existing candidate for an unordered pair, or nil.
func (r *Repository) GetByPair(ctx context.Context, tenantID string, personA, personB string) (*models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.GetByPair")
	defer span.End()

	if personB < personA {
		personA, personB = personB, personA
	}

	query := `
		SELECT ` + candidateColumns + `
		FROM match_candidates
		WHERE tenant_id = $1 AND person_id_a = $2 AND person_id_b = $3
		LIMIT 1
	`

	var candidate models.MatchCandidate
	if err := r.db.GetContext(ctx, &candidate, query, tenantID, personA, personB); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match candidate by pair")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match candidate")
	}

	return &candidate, nil
}

// ListPending retrieves pending match candidates, highest score first.
func (r *Repository) ListPending(ctx context.Context, tenantID string, limit int) ([]models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.ListPending")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns)
	sb.From("match_candidates")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", models.MatchCandidateStatusPending),
	)
	sb.OrderBy("score DESC NULLS LAST", "created_at ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var candidates []models.MatchCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pending match candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pending match candidates")
	}

	return candidates, nil
}

// UpdateScore stores a fresh score and agreement vector for a candidate.
func (r *Repository) UpdateScore(ctx context.Context, tenantID string, id string, score float64, vector map[string]models.FieldOutcome) error {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.UpdateScore")
	defer span.End()

	encoded, err := json.Marshal(vector)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode agreement vector")
	}

	query := `
		UPDATE match_candidates
		SET score = $1, agreement_vector = $2, updated_at = $3
		WHERE tenant_id = $4 AND id = $5
	`

	if _, err := r.db.ExecContext(ctx, query, score, encoded, time.Now().UTC(), tenantID, id); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": id}).Error("Failed to update match candidate score")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update match candidate score")
	}

	return nil
}

// UpdateStatusByID transitions a candidate to a terminal status.
func (r *Repository) UpdateStatusByID(ctx context.Context, tenantID string, id string, status string, resolvedBy *string) error {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.UpdateStatusByID")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("match_candidates")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("resolved_at", now),
		sb.Assign("resolved_by", resolvedBy),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", models.MatchCandidateStatusPending),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update match candidate status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update match candidate status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("match candidate %s is not pending", id))
	}

	return nil
}

// CountByStatus returns the candidate count per status for a tenant.
func (r *Repository) CountByStatus(ctx context.Context, tenantID string) (map[string]int, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.CountByStatus")
	defer span.End()

	query := `
		SELECT status, COUNT(*) AS count
		FROM match_candidates
		WHERE tenant_id = $1
		GROUP BY status
	`

	rows, err := r.db.QueryxContext(ctx, query, tenantID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count match candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count match candidates")
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to scan candidate counts")
		}
		counts[status] = count
	}

	return counts, nil
}
