package manuallink

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

const recordColumns = "id, tenant_id, source_system, reason, payload, status, person_id, created_at, resolved_at, resolved_by"

// Repository handles the manual link queue: raw records the engine declined
// to resolve or create automatically.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new manual link queue repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Enqueue adds a record to the manual link queue
func (r *Repository) Enqueue(ctx context.Context, record *models.ManualLinkRecord) (*models.ManualLinkRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "manuallink.Repository.Enqueue")
	defer span.End()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.Status = models.ManualLinkStatusQueued
	record.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("manual_link_queue")
	sb.Cols("id", "tenant_id", "source_system", "reason", "payload", "status", "created_at")
	sb.Values(record.ID, record.TenantID, record.SourceSystem, record.Reason, record.Payload, record.Status, record.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"record_id": record.ID}).Error("Failed to enqueue manual link record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to enqueue manual link record")
	}

	return record, nil
}

// ListQueued retrieves queued manual link records, oldest first.
func (r *Repository) ListQueued(ctx context.Context, tenantID string, limit int) ([]models.ManualLinkRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "manuallink.Repository.ListQueued")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(recordColumns)
	sb.From("manual_link_queue")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", models.ManualLinkStatusQueued),
	)
	sb.OrderBy("created_at ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var records []models.ManualLinkRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list manual link records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list manual link records")
	}

	return records, nil
}

// Resolve marks a queued record resolved, optionally linking it to a person.
func (r *Repository) Resolve(ctx context.Context, tenantID string, id string, status string, personID *string, resolvedBy *string) error {
	ctx, span := tracing.StartSpan(ctx, "manuallink.Repository.Resolve")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("manual_link_queue")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("person_id", personID),
		sb.Assign("resolved_at", now),
		sb.Assign("resolved_by", resolvedBy),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", models.ManualLinkStatusQueued),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve manual link record")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve manual link record")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("manual link record %s is not queued", id))
	}

	return nil
}
