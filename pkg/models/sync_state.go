package models

import "time"

// SourceSyncState tracks per-source ingestion progress. Version increments
// on every update so stale consumers can detect they are behind.
type SourceSyncState struct {
	ID               string     `json:"id" db:"id"`
	TenantID         string     `json:"tenant_id" db:"tenant_id"`
	SourceSystem     string     `json:"source_system" db:"source_system"`
	LastExecutionID  *string    `json:"last_execution_id,omitempty" db:"last_execution_id"`
	LastRecordAt     *time.Time `json:"last_record_at,omitempty" db:"last_record_at"`
	RecordsProcessed int64      `json:"records_processed" db:"records_processed"`
	RecordsQueued    int64      `json:"records_queued" db:"records_queued"`
	RecordsErrored   int64      `json:"records_errored" db:"records_errored"`
	Version          int        `json:"version" db:"version"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// RawContactRecord is an incoming identity signal from an ingestion source.
type RawContactRecord struct {
	TenantID     string    `json:"tenant_id"`
	SourceSystem string    `json:"source_system"`
	ExecutionID  string    `json:"execution_id,omitempty"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	Address      string    `json:"address,omitempty"`
	Locality     string    `json:"locality,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
