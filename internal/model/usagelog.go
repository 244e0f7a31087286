package model

import "time"

// Usage log entry statuses. An entry is created as StatusProcessing before
// any fallible external call and transitions exactly once to a terminal state.
const (
	StatusProcessing = "processing"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
)

// UsageLogEntry is one processing attempt in the append-only audit trail.
// Entries are never deleted; re-uploads create new entries.
type UsageLogEntry struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	FileName         string     `json:"file_name"`
	FileSize         int64      `json:"file_size"`
	Status           string     `json:"status"`
	ExtractedData    []byte     `json:"extracted_data,omitempty"` // JSON payload, set on success
	ErrorMessage     *string    `json:"error_message,omitempty"`
	ProcessingTimeMs *int64     `json:"processing_time_ms,omitempty"`
	TokensUsed       *int       `json:"tokens_used,omitempty"`
	ArchivePath      *string    `json:"archive_path,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	FinalizedAt      *time.Time `json:"finalized_at,omitempty"`
}

// UsageSummary aggregates the active calendar month for the usage endpoint.
type UsageSummary struct {
	MonthlyLimit int `json:"monthly_limit"`
	CurrentUsage int `json:"current_usage"`
	Remaining    int `json:"remaining"`
	Failed       int `json:"failed"`
}
