// Package merging implements the merge executor: the only writer of
// merged_into_person_id, the reparenting transaction, and merge reversal.
package merging

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sorrel/internal/repositories/alias"
	"github.com/Ramsey-B/sorrel/internal/repositories/identifier"
	"github.com/Ramsey-B/sorrel/internal/repositories/mergelog"
	"github.com/Ramsey-B/sorrel/internal/repositories/person"
	"github.com/Ramsey-B/sorrel/internal/repositories/relationship"
	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/identity"
	"github.com/Ramsey-B/sorrel/pkg/metrics"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// maxMergeAttempts bounds retries when a concurrent merge moves one of our
// roots between resolution and lock acquisition.
const maxMergeAttempts = 3

// Events receives post-commit merge notifications. A nil Events is a no-op.
type Events interface {
	EmitPersonsMerged(ctx context.Context, tenantID string, sourceRootID, targetRootID, logID string)
	EmitMergeReversed(ctx context.Context, tenantID string, sourceRootID, targetRootID, logID string)
}

// GraphProjector mirrors merge outcomes into the graph database. A nil
// projector is a no-op.
type GraphProjector interface {
	RecordMerge(ctx context.Context, tenantID string, sourceRootID, targetRootID string) error
	RecordUndo(ctx context.Context, tenantID string, sourceRootID, targetRootID string) error
}

// MergeOptions carries audit metadata for one merge operation.
type MergeOptions struct {
	Score  *float64
	Reason string
	Actor  string
}

// Engine executes merges and reversals. All identity graph mutation flows
// through here; nothing else writes merged_into_person_id.
type Engine struct {
	logger           ectologger.Logger
	db               database.DB
	personRepo       *person.Repository
	identifierRepo   *identifier.Repository
	aliasRepo        *alias.Repository
	relationshipRepo *relationship.Repository
	mergeLogRepo     *mergelog.Repository
	events           Events
	graph            GraphProjector
}

// NewEngine creates a new merge engine
func NewEngine(
	logger ectologger.Logger,
	db database.DB,
	personRepo *person.Repository,
	identifierRepo *identifier.Repository,
	aliasRepo *alias.Repository,
	relationshipRepo *relationship.Repository,
	mergeLogRepo *mergelog.Repository,
	events Events,
	graph GraphProjector,
) *Engine {
	return &Engine{
		logger:           logger,
		db:               db,
		personRepo:       personRepo,
		identifierRepo:   identifierRepo,
		aliasRepo:        aliasRepo,
		relationshipRepo: relationshipRepo,
		mergeLogRepo:     mergeLogRepo,
		events:           events,
		graph:            graph,
	}
}

// Merge retires sourceID's canonical root into targetID's canonical root:
// one transaction that reparents identifiers, aliases, and relationships,
// path-compresses child pointers, sets merged_into_person_id, and appends a
// merge log entry. Already-identical roots are an idempotent no-op. A lost
// race against a concurrent merge re-resolves and retries.
func (e *Engine) Merge(ctx context.Context, tenantID string, sourceID, targetID string, opts MergeOptions) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	start := time.Now()

	var result *models.MergeResult
	var err error
	for attempt := 1; attempt <= maxMergeAttempts; attempt++ {
		result, err = e.mergeOnce(ctx, tenantID, sourceID, targetID, opts)
		if err == nil {
			break
		}
		if !isContention(err) || attempt == maxMergeAttempts {
			metrics.MergesTotal.WithLabelValues(tenantID, "error").Inc()
			return nil, err
		}
		metrics.MergeRetriesTotal.WithLabelValues(tenantID).Inc()
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"source_person_id": sourceID,
			"target_person_id": targetID,
			"attempt":          attempt,
		}).Warn("Merge lost a root race, retrying")
	}

	metrics.MergeDuration.WithLabelValues(tenantID).Observe(time.Since(start).Seconds())

	if result.NoOp {
		metrics.MergesTotal.WithLabelValues(tenantID, "noop").Inc()
		return result, nil
	}
	metrics.MergesTotal.WithLabelValues(tenantID, "merged").Inc()

	// Post-commit side effects are best effort; the merge itself is durable.
	if e.events != nil {
		e.events.EmitPersonsMerged(ctx, tenantID, result.SourceRootID, result.TargetRootID, result.LogID)
	}
	if e.graph != nil {
		if err := e.graph.RecordMerge(ctx, tenantID, result.SourceRootID, result.TargetRootID); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Failed to project merge into graph")
		}
	}

	return result, nil
}

func (e *Engine) mergeOnce(ctx context.Context, tenantID string, sourceID, targetID string, opts MergeOptions) (*models.MergeResult, error) {
	sourceRoot, err := identity.ResolveRoot(ctx, tenantID, sourceID, e.personRepo.GetMergedInto)
	if err != nil {
		return nil, err
	}
	targetRoot, err := identity.ResolveRoot(ctx, tenantID, targetID, e.personRepo.GetMergedInto)
	if err != nil {
		return nil, err
	}

	if sourceRoot == targetRoot {
		return &models.MergeResult{SourceRootID: sourceRoot, TargetRootID: targetRoot, NoOp: true}, nil
	}

	ctxTx, tx, err := e.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	// Lock the unordered pair, sorted so concurrent merges of the same two
	// roots queue instead of deadlocking.
	lockA, lockB := sourceRoot, targetRoot
	if lockB < lockA {
		lockA, lockB = lockB, lockA
	}
	if err := e.personRepo.LockPair(ctxTx, lockA, lockB); err != nil {
		return nil, err
	}

	// Re-resolve under the lock: a concurrent merge may have moved either
	// root while we waited.
	currentSource, err := identity.ResolveRoot(ctxTx, tenantID, sourceRoot, e.personRepo.GetMergedInto)
	if err != nil {
		return nil, err
	}
	currentTarget, err := identity.ResolveRoot(ctxTx, tenantID, targetRoot, e.personRepo.GetMergedInto)
	if err != nil {
		return nil, err
	}
	if currentSource == currentTarget {
		return &models.MergeResult{SourceRootID: currentSource, TargetRootID: currentTarget, NoOp: true}, nil
	}
	if currentSource != sourceRoot || currentTarget != targetRoot {
		return nil, errContention
	}

	identifierIDs, err := e.identifierRepo.Reparent(ctxTx, tenantID, sourceRoot, targetRoot)
	if err != nil {
		return nil, err
	}
	aliasIDs, err := e.aliasRepo.Reparent(ctxTx, tenantID, sourceRoot, targetRoot)
	if err != nil {
		return nil, err
	}
	relationshipIDs, err := e.relationshipRepo.Reparent(ctxTx, tenantID, sourceRoot, targetRoot)
	if err != nil {
		return nil, err
	}

	// Path compression: anyone pointing at the retiring root now points at
	// the new root, keeping every chain at depth one.
	repointedIDs, err := e.personRepo.RepointChildren(ctxTx, tenantID, sourceRoot, targetRoot)
	if err != nil {
		return nil, err
	}

	if err := e.personRepo.SetMergedInto(ctxTx, tenantID, sourceRoot, targetRoot); err != nil {
		return nil, err
	}

	state := models.PreMergeState{
		IdentifierIDs:     identifierIDs,
		AliasIDs:          aliasIDs,
		RelationshipIDs:   relationshipIDs,
		RepointedChildIDs: repointedIDs,
	}
	encodedState, err := json.Marshal(state)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode pre-merge state")
	}

	actor := opts.Actor
	if actor == "" {
		actor = models.MergeActorAutoMerge
	}
	entry, err := e.mergeLogRepo.Create(ctxTx, &models.MergeLogEntry{
		TenantID:       tenantID,
		SourcePersonID: sourceRoot,
		TargetPersonID: targetRoot,
		Action:         models.MergeActionMerged,
		Score:          opts.Score,
		Reason:         opts.Reason,
		Actor:          actor,
		PreMergeState:  encodedState,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, err
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"source_root_id": sourceRoot,
		"target_root_id": targetRoot,
		"log_id":         entry.ID,
		"identifiers":    len(identifierIDs),
		"aliases":        len(aliasIDs),
		"relationships":  len(relationshipIDs),
		"repointed":      len(repointedIDs),
	}).Info("Merged person")

	return &models.MergeResult{
		SourceRootID: sourceRoot,
		TargetRootID: targetRoot,
		LogID:        entry.ID,
	}, nil
}

// Undo reverses a merge: restores the snapshotted identifiers, aliases, and
// relationships to the source person, clears its merged pointer, and appends
// a reversal entry. Relationships attached to the target after the original
// merge stay with the target.
func (e *Engine) Undo(ctx context.Context, tenantID string, logID string, actor string) (*models.MergeLogEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Undo")
	defer span.End()

	original, err := e.mergeLogRepo.Get(ctx, tenantID, logID)
	if err != nil {
		return nil, err
	}
	if original.Action != models.MergeActionMerged {
		return nil, httperror.NewHTTPError(http.StatusConflict, "only merge entries can be reversed")
	}

	reversed, err := e.mergeLogRepo.HasReversal(ctx, tenantID, logID)
	if err != nil {
		return nil, err
	}
	if reversed {
		return nil, httperror.NewHTTPError(http.StatusConflict, "merge has already been reversed")
	}

	state, err := original.DecodePreMergeState()
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to decode pre-merge state")
	}

	ctxTx, tx, err := e.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	lockA, lockB := original.SourcePersonID, original.TargetPersonID
	if lockB < lockA {
		lockA, lockB = lockB, lockA
	}
	if err := e.personRepo.LockPair(ctxTx, lockA, lockB); err != nil {
		return nil, err
	}

	// The source must still point directly at the target; a later merge of
	// the target would make this reversal ambiguous.
	mergedInto, err := e.personRepo.GetMergedInto(ctxTx, tenantID, original.SourcePersonID)
	if err != nil {
		return nil, err
	}
	if mergedInto == nil || *mergedInto != original.TargetPersonID {
		return nil, httperror.NewHTTPError(http.StatusConflict, "person graph has changed since this merge; reverse later merges first")
	}

	if err := e.identifierRepo.ReparentByIDs(ctxTx, tenantID, state.IdentifierIDs, original.SourcePersonID); err != nil {
		return nil, err
	}
	if err := e.aliasRepo.ReparentByIDs(ctxTx, tenantID, state.AliasIDs, original.SourcePersonID); err != nil {
		return nil, err
	}
	if err := e.relationshipRepo.ReparentByIDs(ctxTx, tenantID, state.RelationshipIDs, original.SourcePersonID); err != nil {
		return nil, err
	}
	if err := e.personRepo.RepointByIDs(ctxTx, tenantID, state.RepointedChildIDs, original.SourcePersonID); err != nil {
		return nil, err
	}
	if err := e.personRepo.ClearMergedInto(ctxTx, tenantID, original.SourcePersonID); err != nil {
		return nil, err
	}

	entry, err := e.mergeLogRepo.Create(ctxTx, &models.MergeLogEntry{
		TenantID:       tenantID,
		SourcePersonID: original.SourcePersonID,
		TargetPersonID: original.TargetPersonID,
		Action:         models.MergeActionReversed,
		Reason:         "reversal of " + logID,
		Actor:          actor,
		ReversesLogID:  &logID,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, err
	}

	metrics.MergesTotal.WithLabelValues(tenantID, "reversed").Inc()
	e.logger.WithContext(ctx).WithFields(map[string]any{
		"source_person_id": original.SourcePersonID,
		"target_person_id": original.TargetPersonID,
		"reverses_log_id":  logID,
	}).Info("Reversed merge")

	if e.events != nil {
		e.events.EmitMergeReversed(ctx, tenantID, original.SourcePersonID, original.TargetPersonID, entry.ID)
	}
	if e.graph != nil {
		if err := e.graph.RecordUndo(ctx, tenantID, original.SourcePersonID, original.TargetPersonID); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Failed to project merge reversal into graph")
		}
	}

	return entry, nil
}
