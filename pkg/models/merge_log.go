package models

import (
	"encoding/json"
	"time"
)

// Merge log actions
const (
	MergeActionMerged   = "merged"
	MergeActionReversed = "reversed"
)

// Merge actors
const (
	MergeActorAutoMerge = "system:automerge"
)

// MergeLogEntry is an immutable audit record of one merge or one reversal.
// Reversal writes a new entry pointing back at the original via
// ReversesLogID; nothing is ever deleted from the log.
type MergeLogEntry struct {
	ID             string          `json:"id" db:"id"`
	TenantID       string          `json:"tenant_id" db:"tenant_id"`
	SourcePersonID string          `json:"source_person_id" db:"source_person_id"`
	TargetPersonID string          `json:"target_person_id" db:"target_person_id"`
	Action         string          `json:"action" db:"action"`
	Score          *float64        `json:"score,omitempty" db:"score"`
	Reason         string          `json:"reason" db:"reason"`
	Actor          string          `json:"actor" db:"actor"`
	ReversesLogID  *string         `json:"reverses_log_id,omitempty" db:"reverses_log_id"`
	PreMergeState  json.RawMessage `json:"pre_merge_state,omitempty" db:"pre_merge_state"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// PreMergeState captures what a merge moved off the source person, with
// enough detail to restore it exactly on undo.
type PreMergeState struct {
	IdentifierIDs     []string `json:"identifier_ids"`
	AliasIDs          []string `json:"alias_ids"`
	RelationshipIDs   []string `json:"relationship_ids"`
	RepointedChildIDs []string `json:"repointed_child_ids"`
}

// DecodePreMergeState decodes the stored pre-merge snapshot.
func (m *MergeLogEntry) DecodePreMergeState() (*PreMergeState, error) {
	state := &PreMergeState{}
	if len(m.PreMergeState) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(m.PreMergeState, state); err != nil {
		return nil, err
	}
	return state, nil
}

// MergeRequest is the manual merge/accept payload.
type MergeRequest struct {
	SourcePersonID string `json:"source_person_id" validate:"required"`
	TargetPersonID string `json:"target_person_id" validate:"required"`
	Reason         string `json:"reason,omitempty"`
}

// MergeResult reports the outcome of one merge operation.
type MergeResult struct {
	SourceRootID string `json:"source_root_id"`
	TargetRootID string `json:"target_root_id"`
	LogID        string `json:"log_id,omitempty"`
	NoOp         bool   `json:"no_op"`
}
