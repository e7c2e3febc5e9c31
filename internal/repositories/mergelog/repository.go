package mergelog

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

const logColumns = "id, tenant_id, source_person_id, target_person_id, action, score, reason, actor, reverses_log_id, pre_merge_state, created_at"

// Repository handles the append-only merge log. Entries are never updated or
// deleted; a reversal is a new entry pointing at the original.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge log repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create appends a merge log entry
func (r *Repository) Create(ctx context.Context, entry *models.MergeLogEntry) (*models.MergeLogEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "mergelog.Repository.Create")
	defer span.End()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("merge_log")
	sb.Cols("id", "tenant_id", "source_person_id", "target_person_id", "action", "score", "reason", "actor", "reverses_log_id", "pre_merge_state", "created_at")
	sb.Values(entry.ID, entry.TenantID, entry.SourcePersonID, entry.TargetPersonID, entry.Action, entry.Score, entry.Reason, entry.Actor, entry.ReversesLogID, entry.PreMergeState, entry.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"log_id": entry.ID}).Error("Failed to create merge log entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge log entry")
	}

	return entry, nil
}

// Get retrieves a merge log entry by ID
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.MergeLogEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "mergelog.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(logColumns)
	sb.From("merge_log")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var entry models.MergeLogEntry
	if err := r.db.GetContext(ctx, &entry, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("merge log entry %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get merge log entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merge log entry")
	}

	return &entry, nil
}

// HasReversal reports whether a merge log entry has already been reversed.
func (r *Repository) HasReversal(ctx context.Context, tenantID string, logID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "mergelog.Repository.HasReversal")
	defer span.End()

	query := `SELECT EXISTS (SELECT 1 FROM merge_log WHERE tenant_id = $1 AND reverses_log_id = $2)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, tenantID, logID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to check merge reversal")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check merge reversal")
	}

	return exists, nil
}

// ListByPerson retrieves merge history involving a person on either side.
func (r *Repository) ListByPerson(ctx context.Context, tenantID string, personID string, limit int) ([]models.MergeLogEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "mergelog.Repository.ListByPerson")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT ` + logColumns + `
		FROM merge_log
		WHERE tenant_id = $1
		  AND (source_person_id = $2 OR target_person_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`

	var entries []models.MergeLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, tenantID, personID, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge log entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge log entries")
	}

	return entries, nil
}
