// Package processor consumes raw contact records from Kafka and feeds
// them through identity resolution.
package processor

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sorrel/internal/repositories/person"
	"github.com/Ramsey-B/sorrel/internal/repositories/syncstate"
	"github.com/Ramsey-B/sorrel/pkg/graph"
	"github.com/Ramsey-B/sorrel/pkg/identity"
	"github.com/Ramsey-B/sorrel/pkg/metrics"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

const (
	outcomeMatched = "matched"
	outcomeCreated = "created"
	outcomeQueued  = "queued"
	outcomeErrored = "errored"
)

// IngestProcessor resolves incoming contact records to persons. It
// implements kafka.RecordHandler; returning an error leaves the offset
// uncommitted so the record is redelivered.
type IngestProcessor struct {
	logger      ectologger.Logger
	identitySvc *identity.Service
	personRepo  *person.Repository
	syncRepo    *syncstate.Repository
	graphSvc    *graph.PersonService
}

// NewIngestProcessor creates a new ingest processor. graphSvc may be nil
// when graph projection is disabled.
func NewIngestProcessor(
	logger ectologger.Logger,
	identitySvc *identity.Service,
	personRepo *person.Repository,
	syncRepo *syncstate.Repository,
	graphSvc *graph.PersonService,
) *IngestProcessor {
	return &IngestProcessor{
		logger:      logger,
		identitySvc: identitySvc,
		personRepo:  personRepo,
		syncRepo:    syncRepo,
		graphSvc:    graphSvc,
	}
}

// HandleRecord resolves a single raw contact record
func (p *IngestProcessor) HandleRecord(ctx context.Context, record *models.RawContactRecord) error {
	ctx, span := tracing.StartSpan(ctx, "processor.IngestProcessor.HandleRecord")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":     record.TenantID,
		"source_system": record.SourceSystem,
		"execution_id":  record.ExecutionID,
	})

	if record.TenantID == "" || record.SourceSystem == "" {
		// Nothing we can route this to; dropping is the only option.
		log.Warn("Dropping contact record without tenant or source system")
		metrics.RecordsIngestedTotal.WithLabelValues(record.TenantID, record.SourceSystem, outcomeErrored).Inc()
		return nil
	}

	req := &models.FindOrCreatePersonRequest{
		Email:        record.Email,
		Phone:        record.Phone,
		FirstName:    record.FirstName,
		LastName:     record.LastName,
		Address:      record.Address,
		Locality:     record.Locality,
		SourceSystem: record.SourceSystem,
	}

	result, err := p.identitySvc.FindOrCreatePerson(ctx, record.TenantID, req)
	if err != nil {
		log.WithError(err).Error("Failed to resolve contact record")
		metrics.RecordsIngestedTotal.WithLabelValues(record.TenantID, record.SourceSystem, outcomeErrored).Inc()
		p.recordProgress(ctx, record, 0, 0, 1)
		return err
	}

	outcome := outcomeMatched
	queued := 0
	switch {
	case result.Queued:
		outcome = outcomeQueued
		queued = 1
	case result.Created:
		outcome = outcomeCreated
		p.projectPerson(ctx, record.TenantID, result.PersonID)
	}

	metrics.RecordsIngestedTotal.WithLabelValues(record.TenantID, record.SourceSystem, outcome).Inc()
	p.recordProgress(ctx, record, 1, queued, 0)

	log.WithFields(map[string]any{
		"person_id": result.PersonID,
		"outcome":   outcome,
	}).Debug("Processed contact record")

	return nil
}

// projectPerson mirrors a newly created person into the graph database.
// Best effort; the graph is rebuilt from Postgres if it drifts.
func (p *IngestProcessor) projectPerson(ctx context.Context, tenantID string, personID string) {
	if p.graphSvc == nil || personID == "" {
		return
	}

	created, err := p.personRepo.Get(ctx, tenantID, personID)
	if err != nil || created == nil {
		return
	}

	if err := p.graphSvc.UpsertPerson(ctx, created); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"person_id": personID,
		}).Warn("Failed to project person into graph")
	}
}

// recordProgress advances the per-source sync cursor. Failures are
// logged and swallowed; the cursor is advisory.
func (p *IngestProcessor) recordProgress(ctx context.Context, record *models.RawContactRecord, processed, queued, errored int) {
	recordAt := record.Timestamp
	if recordAt.IsZero() {
		recordAt = time.Now().UTC()
	}

	if err := p.syncRepo.RecordProgress(ctx, record.TenantID, record.SourceSystem, record.ExecutionID, recordAt, processed, queued, errored); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":     record.TenantID,
			"source_system": record.SourceSystem,
		}).Warn("Failed to record sync progress")
	}
}
