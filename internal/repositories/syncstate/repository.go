package syncstate

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

const stateColumns = "id, tenant_id, source_system, last_execution_id, last_record_at, records_processed, records_queued, records_errored, version, created_at, updated_at"

// Repository tracks per-source ingestion progress with a version counter
// that increments on every update.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new sync state repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the sync state for a source system, or nil when the source
// has never reported.
func (r *Repository) Get(ctx context.Context, tenantID string, sourceSystem string) (*models.SourceSyncState, error) {
	ctx, span := tracing.StartSpan(ctx, "syncstate.Repository.Get")
	defer span.End()

	query := `
		SELECT ` + stateColumns + `
		FROM source_sync_state
		WHERE tenant_id = $1 AND source_system = $2
	`

	var state models.SourceSyncState
	if err := r.db.GetContext(ctx, &state, query, tenantID, sourceSystem); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get sync state")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get sync state")
	}

	return &state, nil
}

// List retrieves all sync states for a tenant
func (r *Repository) List(ctx context.Context, tenantID string) ([]models.SourceSyncState, error) {
	ctx, span := tracing.StartSpan(ctx, "syncstate.Repository.List")
	defer span.End()

	query := `
		SELECT ` + stateColumns + `
		FROM source_sync_state
		WHERE tenant_id = $1
		ORDER BY source_system
	`

	var states []models.SourceSyncState
	if err := r.db.SelectContext(ctx, &states, query, tenantID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list sync states")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list sync states")
	}

	return states, nil
}

// RecordProgress upserts ingestion progress for a source. Counter columns
// accumulate and version increments atomically.
func (r *Repository) RecordProgress(ctx context.Context, tenantID string, sourceSystem string, executionID string, recordAt time.Time, processed, queued, errored int) error {
	ctx, span := tracing.StartSpan(ctx, "syncstate.Repository.RecordProgress")
	defer span.End()

	now := time.Now().UTC()
	query := `
		INSERT INTO source_sync_state (id, tenant_id, source_system, last_execution_id, last_record_at, records_processed, records_queued, records_errored, version, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, 1, $9, $9)
		ON CONFLICT (tenant_id, source_system) DO UPDATE SET
			last_execution_id = COALESCE(NULLIF(EXCLUDED.last_execution_id, ''), source_sync_state.last_execution_id),
			last_record_at = GREATEST(source_sync_state.last_record_at, EXCLUDED.last_record_at),
			records_processed = source_sync_state.records_processed + EXCLUDED.records_processed,
			records_queued = source_sync_state.records_queued + EXCLUDED.records_queued,
			records_errored = source_sync_state.records_errored + EXCLUDED.records_errored,
			version = source_sync_state.version + 1,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, uuid.New().String(), tenantID, sourceSystem, executionID, recordAt, processed, queued, errored, now); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_system": sourceSystem}).Error("Failed to record sync progress")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record sync progress")
	}

	return nil
}
