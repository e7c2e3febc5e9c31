package matching

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sorrel/internal/repositories/identifier"
	"github.com/Ramsey-B/sorrel/internal/repositories/matchcandidate"
	"github.com/Ramsey-B/sorrel/internal/repositories/person"
	"github.com/Ramsey-B/sorrel/pkg/identity"
	"github.com/Ramsey-B/sorrel/pkg/merging"
	"github.com/Ramsey-B/sorrel/pkg/metrics"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// Config tunes the matching pipeline.
type Config struct {
	Scorer     ScorerConfig
	Thresholds Thresholds

	// SharedIdentifierThreshold is the soft-blacklist cut: a value held by
	// more than this many canonical persons scores with discounted weight.
	SharedIdentifierThreshold int
}

// DefaultConfig returns the production matching configuration.
func DefaultConfig() Config {
	return Config{
		Scorer:                    DefaultScorerConfig(),
		Thresholds:                DefaultThresholds(),
		SharedIdentifierThreshold: 5,
	}
}

// Service runs the batch matching pipeline: blocking passes that insert
// pending candidates, and bounded sweeps that score them and execute
// auto-merges. It never mutates the identity graph itself; merges go
// through the merge engine.
type Service struct {
	logger         ectologger.Logger
	config         Config
	scorer         *Scorer
	personRepo     *person.Repository
	identifierRepo *identifier.Repository
	candidateRepo  *matchcandidate.Repository
	merger         *merging.Engine
}

// NewService creates a new matching service
func NewService(
	logger ectologger.Logger,
	config Config,
	personRepo *person.Repository,
	identifierRepo *identifier.Repository,
	candidateRepo *matchcandidate.Repository,
	merger *merging.Engine,
) *Service {
	return &Service{
		logger:         logger,
		config:         config,
		scorer:         NewScorer(config.Scorer),
		personRepo:     personRepo,
		identifierRepo: identifierRepo,
		candidateRepo:  candidateRepo,
		merger:         merger,
	}
}

// GenerateCandidates runs one bounded blocking pass: exact email/phone
// blocks plus fuzzy name+locality blocks. Inserting is the only side effect;
// rerunning cannot duplicate a pending pair or trigger a merge. With rescore
// set, pairs whose previous candidate was already resolved are re-opened for
// a fresh scoring pass, which is how an undone merge gets re-evaluated. A
// failing block family is counted and skipped; the other family still runs.
func (s *Service) GenerateCandidates(ctx context.Context, tenantID string, limit int, rescore bool) (*models.GenerateCandidatesResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.GenerateCandidates")
	defer span.End()

	result := &models.GenerateCandidatesResult{}

	exactPairs, err := s.identifierRepo.ListExactPairs(ctx, tenantID, limit)
	if err != nil {
		result.Errored++
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
		}).Error("Exact identifier blocking pass failed")
	}
	namePairs, err := s.personRepo.ListNameBlockPairs(ctx, tenantID, limit)
	if err != nil {
		result.Errored++
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
		}).Error("Name blocking pass failed")
	}

	seen := map[string]bool{}
	pairs := make([]models.CandidatePair, 0, len(exactPairs)+len(namePairs))
	for _, pair := range append(exactPairs, namePairs...) {
		a, b := pair.PersonIDA, pair.PersonIDB
		if b < a {
			a, b = b, a
		}
		if a == b {
			continue
		}
		key := a + "|" + b
		if seen[key] {
			continue
		}
		seen[key] = true
		pairs = append(pairs, models.CandidatePair{PersonIDA: a, PersonIDB: b, BlockingKey: pair.BlockingKey})
	}

	inserted, err := s.candidateRepo.CreateBatch(ctx, tenantID, pairs, rescore)
	if err != nil {
		return nil, err
	}

	result.Inserted = inserted
	result.Skipped = len(pairs) - inserted
	metrics.CandidatesGeneratedTotal.WithLabelValues(tenantID).Add(float64(inserted))

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"inserted":  result.Inserted,
		"skipped":   result.Skipped,
		"errored":   result.Errored,
		"rescore":   rescore,
	}).Info("Generated match candidates")

	return result, nil
}

// ScorePair scores two persons by their current identifier, name, and
// address facts. Symmetric in its arguments.
func (s *Service) ScorePair(ctx context.Context, tenantID string, personA, personB string) (MatchScore, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.ScorePair")
	defer span.End()

	fieldsA, err := s.loadFields(ctx, tenantID, personA)
	if err != nil {
		return MatchScore{}, err
	}
	fieldsB, err := s.loadFields(ctx, tenantID, personB)
	if err != nil {
		return MatchScore{}, err
	}

	return s.scorer.Score(ctx, fieldsA, fieldsB, s.sharedCheck(tenantID))
}

// AutoMergeSweep scores up to limit pending candidates and merges the pairs
// at or above the upper threshold. One bad candidate is counted and skipped,
// never aborting the batch. Running the sweep twice with no new data merges
// nothing the second time.
func (s *Service) AutoMergeSweep(ctx context.Context, tenantID string, limit int) (*models.AutoMergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.AutoMergeSweep")
	defer span.End()

	result := &models.AutoMergeResult{}

	candidates, err := s.candidateRepo.ListPending(ctx, tenantID, limit)
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		if err := s.processCandidate(ctx, tenantID, &candidate, result); err != nil {
			result.Errored++
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"candidate_id": candidate.ID,
			}).Error("Failed to process match candidate")
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"scored":    result.Scored,
		"merged":    result.Merged,
		"pending":   result.Pending,
		"rejected":  result.Rejected,
		"errored":   result.Errored,
	}).Info("Auto-merge sweep completed")

	return result, nil
}

func (s *Service) processCandidate(ctx context.Context, tenantID string, candidate *models.MatchCandidate, result *models.AutoMergeResult) error {
	rootA, err := identity.ResolveRoot(ctx, tenantID, candidate.PersonIDA, s.personRepo.GetMergedInto)
	if err != nil {
		return err
	}
	rootB, err := identity.ResolveRoot(ctx, tenantID, candidate.PersonIDB, s.personRepo.GetMergedInto)
	if err != nil {
		return err
	}

	// Both sides already resolve to one person; the candidate is moot.
	if rootA == rootB {
		result.Merged++
		return s.candidateRepo.UpdateStatusByID(ctx, tenantID, candidate.ID, models.MatchCandidateStatusMerged, nil)
	}

	score, err := s.ScorePair(ctx, tenantID, rootA, rootB)
	if err != nil {
		return err
	}
	if err := s.candidateRepo.UpdateScore(ctx, tenantID, candidate.ID, score.LogOdds, score.Vector); err != nil {
		return err
	}
	result.Scored++

	decision := Classify(score.LogOdds, s.config.Thresholds)
	metrics.CandidatesScoredTotal.WithLabelValues(tenantID, string(decision)).Inc()

	switch decision {
	case DecisionAutoMerge:
		source, target, err := s.pickMergeDirection(ctx, tenantID, rootA, rootB)
		if err != nil {
			return err
		}
		logOdds := score.LogOdds
		if _, err := s.merger.Merge(ctx, tenantID, source, target, merging.MergeOptions{
			Score:  &logOdds,
			Reason: fmt.Sprintf("auto-merge at log-odds %.2f", score.LogOdds),
			Actor:  models.MergeActorAutoMerge,
		}); err != nil {
			return err
		}
		result.Merged++
		return s.candidateRepo.UpdateStatusByID(ctx, tenantID, candidate.ID, models.MatchCandidateStatusAutoMerged, nil)
	case DecisionReject:
		result.Rejected++
		return s.candidateRepo.UpdateStatusByID(ctx, tenantID, candidate.ID, models.MatchCandidateStatusRejected, nil)
	default:
		// Stays pending for human review.
		result.Pending++
		return nil
	}
}

// pickMergeDirection keeps the older root canonical: downstream systems have
// held its id longer, so fewer references go stale.
func (s *Service) pickMergeDirection(ctx context.Context, tenantID string, rootA, rootB string) (source string, target string, err error) {
	personA, err := s.personRepo.Get(ctx, tenantID, rootA)
	if err != nil {
		return "", "", err
	}
	personB, err := s.personRepo.Get(ctx, tenantID, rootB)
	if err != nil {
		return "", "", err
	}

	if personA.CreatedAt.Before(personB.CreatedAt) {
		return rootB, rootA, nil
	}
	return rootA, rootB, nil
}

func (s *Service) loadFields(ctx context.Context, tenantID string, personID string) (PersonFields, error) {
	fields := PersonFields{}

	p, err := s.personRepo.Get(ctx, tenantID, personID)
	if err != nil {
		return fields, err
	}
	if p.NameNorm != nil {
		fields.Name = *p.NameNorm
	}
	if p.AddressNorm != nil {
		fields.Address = *p.AddressNorm
	}

	identifiers, err := s.identifierRepo.ListByPerson(ctx, tenantID, personID)
	if err != nil {
		return fields, err
	}
	for _, ident := range identifiers {
		switch ident.IDType {
		case models.IdentifierTypeEmail:
			fields.Emails = append(fields.Emails, ident.ValueNorm)
		case models.IdentifierTypePhone:
			fields.Phones = append(fields.Phones, ident.ValueNorm)
		}
	}

	return fields, nil
}

func (s *Service) sharedCheck(tenantID string) SharedCheck {
	return func(ctx context.Context, idType models.IdentifierType, valueNorm string) (bool, error) {
		count, err := s.identifierRepo.SharedCanonicalCount(ctx, tenantID, idType, valueNorm)
		if err != nil {
			return false, err
		}
		return count > s.config.SharedIdentifierThreshold, nil
	}
}
