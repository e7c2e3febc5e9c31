// Package matching implements probabilistic record linkage: blocking-based
// candidate generation, Fellegi-Sunter log-odds scoring, and threshold
// decisioning over person pairs.
package matching

import (
	"context"
	"math"

	"github.com/Ramsey-B/sorrel/pkg/models"
)

// Score field names, also the keys of the stored agreement vector
const (
	FieldEmail   = "email"
	FieldPhone   = "phone"
	FieldName    = "name"
	FieldAddress = "address"
)

// FieldWeights is the log-odds contribution of one field: a positive weight
// on agreement, a smaller-magnitude negative weight on disagreement. A
// missing value on either side contributes zero.
type FieldWeights struct {
	Agree    float64
	Disagree float64
}

// ScorerConfig carries the per-field weights and the discounted weight
// applied when an agreeing identifier is soft-blacklisted.
type ScorerConfig struct {
	Email   FieldWeights
	Phone   FieldWeights
	Name    FieldWeights
	Address FieldWeights

	// SharedAgreeWeight replaces the field's agree weight when the agreeing
	// value is held by more canonical persons than the blacklist threshold.
	SharedAgreeWeight float64
}

// DefaultScorerConfig returns weights reflecting real-world discriminating
// power: email strongest, phone weaker (households share), name weak enough
// that a name-only agreement can never clear the auto-merge threshold.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		Email:             FieldWeights{Agree: 8.0, Disagree: -3.0},
		Phone:             FieldWeights{Agree: 5.0, Disagree: -2.0},
		Name:              FieldWeights{Agree: 2.5, Disagree: -1.5},
		Address:           FieldWeights{Agree: 1.5, Disagree: -0.5},
		SharedAgreeWeight: 0.5,
	}
}

// PersonFields is the normalized comparison view of one person. Empty
// strings and empty slices mean the field is missing.
type PersonFields struct {
	Emails  []string
	Phones  []string
	Name    string
	Address string
}

// SharedCheck reports whether an identifier value is soft-blacklisted
// (shared by more canonical persons than the configured threshold).
type SharedCheck func(ctx context.Context, idType models.IdentifierType, valueNorm string) (bool, error)

// MatchScore is a scored comparison: total log-odds plus the per-field
// agreement vector shown to reviewers.
type MatchScore struct {
	LogOdds float64
	Vector  map[string]models.FieldOutcome
}

// Probability maps the log-odds to a 0-100 display percentage via the
// logistic transform. Threshold comparisons always use the raw log-odds.
func (m MatchScore) Probability() float64 {
	return 100.0 / (1.0 + math.Exp(-m.LogOdds))
}

// Scorer computes Fellegi-Sunter match scores for person pairs.
type Scorer struct {
	config ScorerConfig
}

// NewScorer creates a new scorer
func NewScorer(config ScorerConfig) *Scorer {
	return &Scorer{config: config}
}

// Score compares two persons field by field. The result is symmetric:
// Score(a, b) and Score(b, a) produce the same log-odds and vector.
func (s *Scorer) Score(ctx context.Context, a, b PersonFields, shared SharedCheck) (MatchScore, error) {
	score := MatchScore{Vector: map[string]models.FieldOutcome{}}

	emailOutcome, err := s.compareIdentifierSets(ctx, models.IdentifierTypeEmail, a.Emails, b.Emails, shared)
	if err != nil {
		return MatchScore{}, err
	}
	score.Vector[FieldEmail] = emailOutcome
	score.LogOdds += s.weightFor(s.config.Email, emailOutcome)

	phoneOutcome, err := s.compareIdentifierSets(ctx, models.IdentifierTypePhone, a.Phones, b.Phones, shared)
	if err != nil {
		return MatchScore{}, err
	}
	score.Vector[FieldPhone] = phoneOutcome
	score.LogOdds += s.weightFor(s.config.Phone, phoneOutcome)

	nameOutcome := compareValues(a.Name, b.Name)
	score.Vector[FieldName] = nameOutcome
	score.LogOdds += s.weightFor(s.config.Name, nameOutcome)

	addressOutcome := compareValues(a.Address, b.Address)
	score.Vector[FieldAddress] = addressOutcome
	score.LogOdds += s.weightFor(s.config.Address, addressOutcome)

	return score, nil
}

func (s *Scorer) weightFor(weights FieldWeights, outcome models.FieldOutcome) float64 {
	switch outcome {
	case models.FieldOutcomeAgree:
		return weights.Agree
	case models.FieldOutcomeSharedAgree:
		return s.config.SharedAgreeWeight
	case models.FieldOutcomeDisagree:
		return weights.Disagree
	default:
		return 0
	}
}

// compareIdentifierSets compares two sets of normalized identifier values.
// Any overlap is an agreement; an overlap on a soft-blacklisted value is a
// shared agreement with discounted weight.
func (s *Scorer) compareIdentifierSets(ctx context.Context, idType models.IdentifierType, a, b []string, shared SharedCheck) (models.FieldOutcome, error) {
	if len(a) == 0 || len(b) == 0 {
		return models.FieldOutcomeMissing, nil
	}

	bSet := map[string]bool{}
	for _, v := range b {
		if v != "" {
			bSet[v] = true
		}
	}

	// Pick the smallest overlapping value so the outcome is independent of
	// argument order even when several values overlap.
	matched := ""
	for _, v := range a {
		if v != "" && bSet[v] && (matched == "" || v < matched) {
			matched = v
		}
	}
	if matched == "" {
		return models.FieldOutcomeDisagree, nil
	}

	if shared != nil {
		isShared, err := shared(ctx, idType, matched)
		if err != nil {
			return "", err
		}
		if isShared {
			return models.FieldOutcomeSharedAgree, nil
		}
	}

	return models.FieldOutcomeAgree, nil
}

func compareValues(a, b string) models.FieldOutcome {
	if a == "" || b == "" {
		return models.FieldOutcomeMissing
	}
	if a == b {
		return models.FieldOutcomeAgree
	}
	return models.FieldOutcomeDisagree
}
