package models

import "time"

// IdentifierType is the kind of contact fact an identifier carries
type IdentifierType string

const (
	IdentifierTypeEmail IdentifierType = "email"
	IdentifierTypePhone IdentifierType = "phone"
)

// Identifier is a typed contact fact belonging to a person. ValueNorm is a
// pure function of (IDType, ValueRaw); rows are append-only and reparented,
// never deleted, when persons merge.
type Identifier struct {
	ID           string         `json:"id" db:"id"`
	TenantID     string         `json:"tenant_id" db:"tenant_id"`
	PersonID     string         `json:"person_id" db:"person_id"`
	IDType       IdentifierType `json:"id_type" db:"id_type"`
	ValueRaw     string         `json:"value_raw" db:"value_raw"`
	ValueNorm    string         `json:"value_norm" db:"value_norm"`
	SourceSystem string         `json:"source_system" db:"source_system"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// SharedIdentifier is a normalized value attached to multiple canonical
// persons. Values past the soft-blacklist threshold contribute reduced weight
// when scoring and are surfaced for data-quality review.
type SharedIdentifier struct {
	IDType         IdentifierType `json:"id_type" db:"id_type"`
	ValueNorm      string         `json:"value_norm" db:"value_norm"`
	CanonicalCount int            `json:"canonical_count" db:"canonical_count"`
}
