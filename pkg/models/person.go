package models

import "time"

// Person is a candidate real-world individual. A person with a nil
// MergedIntoPersonID is canonical (a "root"); a non-nil pointer means the row
// was retired by a merge and points directly at its root.
type Person struct {
	ID                 string     `json:"id" db:"id"`
	TenantID           string     `json:"tenant_id" db:"tenant_id"`
	DisplayName        string     `json:"display_name" db:"display_name"`
	FirstName          *string    `json:"first_name,omitempty" db:"first_name"`
	LastName           *string    `json:"last_name,omitempty" db:"last_name"`
	NameNorm           *string    `json:"name_norm,omitempty" db:"name_norm"`
	NameSoundex        *string    `json:"name_soundex,omitempty" db:"name_soundex"`
	AddressNorm        *string    `json:"address_norm,omitempty" db:"address_norm"`
	Locality           *string    `json:"locality,omitempty" db:"locality"`
	MergedIntoPersonID *string    `json:"merged_into_person_id,omitempty" db:"merged_into_person_id"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// IsCanonical returns true if this person has not been merged into another.
func (p *Person) IsCanonical() bool {
	return p.MergedIntoPersonID == nil
}

// FindOrCreatePersonRequest is the per-record entrypoint payload from
// ingestion sources. All identity fields are optional; a record with no
// usable identifiers is routed to the manual link queue.
type FindOrCreatePersonRequest struct {
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Address      string `json:"address,omitempty"`
	Locality     string `json:"locality,omitempty"`
	SourceSystem string `json:"source_system" validate:"required"`
}

// FindOrCreatePersonResult reports how the entrypoint resolved a record.
type FindOrCreatePersonResult struct {
	PersonID     string `json:"person_id,omitempty"`
	Created      bool   `json:"created"`
	Queued       bool   `json:"queued"`
	QueuedReason string `json:"queued_reason,omitempty"`
}
