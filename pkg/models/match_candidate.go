package models

import (
	"encoding/json"
	"time"
)

// FieldOutcome is the per-field comparison result for a scored pair
type FieldOutcome string

const (
	FieldOutcomeAgree    FieldOutcome = "agree"
	FieldOutcomeDisagree FieldOutcome = "disagree"
	FieldOutcomeMissing  FieldOutcome = "missing"
	// FieldOutcomeSharedAgree marks an agreement on a soft-blacklisted
	// identifier, which contributes a discounted weight.
	FieldOutcomeSharedAgree FieldOutcome = "shared_agree"
)

// MatchCandidateStatus constants
const (
	MatchCandidateStatusPending    = "pending"
	MatchCandidateStatusAutoMerged = "auto_merged"
	MatchCandidateStatusMerged     = "merged"
	MatchCandidateStatusRejected   = "rejected"
)

// MatchCandidate is a potential match between two persons. The pair is
// stored ordered (PersonIDA < PersonIDB) so an unordered pair maps to exactly
// one row per blocking pass.
type MatchCandidate struct {
	ID              string          `json:"id" db:"id"`
	TenantID        string          `json:"tenant_id" db:"tenant_id"`
	PersonIDA       string          `json:"person_id_a" db:"person_id_a"`
	PersonIDB       string          `json:"person_id_b" db:"person_id_b"`
	BlockingKey     string          `json:"blocking_key" db:"blocking_key"`
	Score           *float64        `json:"score,omitempty" db:"score"`
	AgreementVector json.RawMessage `json:"agreement_vector,omitempty" db:"agreement_vector"`
	Status          string          `json:"status" db:"status"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy      *string         `json:"resolved_by,omitempty" db:"resolved_by"`
}

// AgreementFields decodes the stored agreement vector.
func (m *MatchCandidate) AgreementFields() (map[string]FieldOutcome, error) {
	if len(m.AgreementVector) == 0 {
		return map[string]FieldOutcome{}, nil
	}
	vector := map[string]FieldOutcome{}
	if err := json.Unmarshal(m.AgreementVector, &vector); err != nil {
		return nil, err
	}
	return vector, nil
}

// MatchCandidateListResponse is the response for listing match candidates
type MatchCandidateListResponse struct {
	Items  []MatchCandidate `json:"items"`
	Counts map[string]int   `json:"counts"`
}

// CandidatePair is an unordered person pair produced by a blocking pass,
// stored ordered so PersonIDA < PersonIDB.
type CandidatePair struct {
	PersonIDA   string `json:"person_id_a" db:"person_id_a"`
	PersonIDB   string `json:"person_id_b" db:"person_id_b"`
	BlockingKey string `json:"blocking_key" db:"blocking_key"`
}

// GenerateCandidatesResult summarizes one bounded blocking pass.
type GenerateCandidatesResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Errored  int `json:"errored"`
}

// AutoMergeResult summarizes one bounded auto-merge sweep.
type AutoMergeResult struct {
	Scored   int `json:"scored"`
	Merged   int `json:"merged"`
	Pending  int `json:"pending"`
	Rejected int `json:"rejected"`
	Errored  int `json:"errored"`
}
