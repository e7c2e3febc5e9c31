package models

import (
	"encoding/json"
	"time"
)

// PersonRelationship links a person to another entity (place, animal,
// service request). The engine never interprets these rows; it only repoints
// them from a source root to a target root during merges.
type PersonRelationship struct {
	ID               string          `json:"id" db:"id"`
	TenantID         string          `json:"tenant_id" db:"tenant_id"`
	PersonID         string          `json:"person_id" db:"person_id"`
	RelationshipType string          `json:"relationship_type" db:"relationship_type"`
	RelatedType      string          `json:"related_type" db:"related_type"`
	RelatedID        string          `json:"related_id" db:"related_id"`
	SourceSystem     string          `json:"source_system" db:"source_system"`
	Data             json.RawMessage `json:"data,omitempty" db:"data"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}
