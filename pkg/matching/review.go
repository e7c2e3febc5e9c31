package matching

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/sorrel/pkg/identity"
	"github.com/Ramsey-B/sorrel/pkg/merging"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// Accept executes the merge for a reviewed candidate. The candidate must
// still be pending; if both sides already resolve to the same person the
// candidate is closed without a merge.
func (s *Service) Accept(ctx context.Context, tenantID string, candidateID string, reviewer string) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.Accept")
	defer span.End()

	candidate, err := s.candidateRepo.Get(ctx, tenantID, candidateID)
	if err != nil {
		return nil, err
	}
	if candidate.Status != models.MatchCandidateStatusPending {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("match candidate is %s, not pending", candidate.Status))
	}

	rootA, err := identity.ResolveRoot(ctx, tenantID, candidate.PersonIDA, s.personRepo.GetMergedInto)
	if err != nil {
		return nil, err
	}
	rootB, err := identity.ResolveRoot(ctx, tenantID, candidate.PersonIDB, s.personRepo.GetMergedInto)
	if err != nil {
		return nil, err
	}

	if rootA == rootB {
		if err := s.candidateRepo.UpdateStatusByID(ctx, tenantID, candidateID, models.MatchCandidateStatusMerged, &reviewer); err != nil {
			return nil, err
		}
		return &models.MergeResult{SourceRootID: rootA, TargetRootID: rootB, NoOp: true}, nil
	}

	source, target, err := s.pickMergeDirection(ctx, tenantID, rootA, rootB)
	if err != nil {
		return nil, err
	}

	result, err := s.merger.Merge(ctx, tenantID, source, target, merging.MergeOptions{
		Score:  candidate.Score,
		Reason: fmt.Sprintf("manual accept of candidate %s", candidateID),
		Actor:  reviewer,
	})
	if err != nil {
		return nil, err
	}

	if err := s.candidateRepo.UpdateStatusByID(ctx, tenantID, candidateID, models.MatchCandidateStatusMerged, &reviewer); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"candidate_id": candidateID,
		"reviewer":     reviewer,
		"source_id":    result.SourceRootID,
		"target_id":    result.TargetRootID,
	}).Info("Accepted match candidate")

	return result, nil
}

// Reject closes a pending candidate without merging
func (s *Service) Reject(ctx context.Context, tenantID string, candidateID string, reviewer string) error {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.Reject")
	defer span.End()

	if _, err := s.candidateRepo.Get(ctx, tenantID, candidateID); err != nil {
		return err
	}

	if err := s.candidateRepo.UpdateStatusByID(ctx, tenantID, candidateID, models.MatchCandidateStatusRejected, &reviewer); err != nil {
		return err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"candidate_id": candidateID,
		"reviewer":     reviewer,
	}).Info("Rejected match candidate")

	return nil
}
