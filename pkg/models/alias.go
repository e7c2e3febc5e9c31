package models

import "time"

// Alias is a historical name variant observed for a person, with provenance.
// Aliases are never deleted; they widen candidate search and feed display
// name selection.
type Alias struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"tenant_id" db:"tenant_id"`
	PersonID     string    `json:"person_id" db:"person_id"`
	Name         string    `json:"name" db:"name"`
	NameNorm     string    `json:"name_norm" db:"name_norm"`
	SourceSystem string    `json:"source_system" db:"source_system"`
	FirstSeenAt  time.Time `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt   time.Time `json:"last_seen_at" db:"last_seen_at"`
}
