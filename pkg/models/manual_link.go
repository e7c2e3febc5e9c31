package models

import (
	"encoding/json"
	"time"
)

// Manual link queue statuses
const (
	ManualLinkStatusQueued   = "queued"
	ManualLinkStatusResolved = "resolved"
	ManualLinkStatusDropped  = "dropped"
)

// ManualLinkRecord holds a raw record that could not be resolved or created
// automatically (no usable identifiers, or everything invalid after
// normalization). Staff link it to a person by hand or drop it.
type ManualLinkRecord struct {
	ID           string          `json:"id" db:"id"`
	TenantID     string          `json:"tenant_id" db:"tenant_id"`
	SourceSystem string          `json:"source_system" db:"source_system"`
	Reason       string          `json:"reason" db:"reason"`
	Payload      json.RawMessage `json:"payload" db:"payload"`
	Status       string          `json:"status" db:"status"`
	PersonID     *string         `json:"person_id,omitempty" db:"person_id"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy   *string         `json:"resolved_by,omitempty" db:"resolved_by"`
}
