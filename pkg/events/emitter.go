// Package events publishes identity graph change notifications for
// downstream consumers (analytics, reporting, cache invalidation).
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sorrel/pkg/kafka"
)

// Event types emitted on the person events topic
const (
	EventPersonCreated       = "person.created"
	EventPersonsMerged       = "person.merged"
	EventPersonMergeReversed = "person.merge_reversed"
)

// Emitter publishes person lifecycle events. Emission is best effort: the
// database commit is the source of truth, so publish failures log and move
// on rather than failing the operation.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitPersonCreated announces a newly created person.
func (e *Emitter) EmitPersonCreated(ctx context.Context, tenantID string, personID string) {
	e.publish(ctx, &kafka.PersonEvent{
		EventType: EventPersonCreated,
		TenantID:  tenantID,
		PersonID:  personID,
	})
}

// EmitPersonsMerged announces that sourceRootID was retired into
// targetRootID.
func (e *Emitter) EmitPersonsMerged(ctx context.Context, tenantID string, sourceRootID, targetRootID, logID string) {
	e.publish(ctx, &kafka.PersonEvent{
		EventType:      EventPersonsMerged,
		TenantID:       tenantID,
		PersonID:       sourceRootID,
		TargetPersonID: targetRootID,
		MergeLogID:     logID,
	})
}

// EmitMergeReversed announces a merge reversal.
func (e *Emitter) EmitMergeReversed(ctx context.Context, tenantID string, sourceRootID, targetRootID, logID string) {
	e.publish(ctx, &kafka.PersonEvent{
		EventType:      EventPersonMergeReversed,
		TenantID:       tenantID,
		PersonID:       sourceRootID,
		TargetPersonID: targetRootID,
		MergeLogID:     logID,
	})
}

func (e *Emitter) publish(ctx context.Context, event *kafka.PersonEvent) {
	if e == nil || e.producer == nil {
		return
	}
	if err := e.producer.PublishPersonEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.EventType,
			"person_id":  event.PersonID,
		}).Warn("Failed to publish person event")
	}
}
