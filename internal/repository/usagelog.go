package repository

import (
	"context"
	"time"

	"invoicesheet/internal/model"
)

// UsageLogRepository defines data access for the append-only usage log.
// Entries are never deleted; terminal transitions are guarded so that an
// already-finalized entry is left untouched.
type UsageLogRepository interface {
	// Create inserts a new entry in 'processing' state and returns the stored record.
	Create(ctx context.Context, entry *model.UsageLogEntry) (*model.UsageLogEntry, error)

	// FindByID returns an entry by its ID.
	FindByID(ctx context.Context, id string) (*model.UsageLogEntry, error)

	// MarkSuccess transitions an entry from 'processing' to 'success'.
	// Returns false when the entry was already finalized (no-op).
	MarkSuccess(ctx context.Context, id string, extractedData []byte, processingTimeMs int64, tokensUsed *int) (bool, error)

	// MarkFailed transitions an entry from 'processing' to 'failed'.
	// Returns false when the entry was already finalized (no-op).
	MarkFailed(ctx context.Context, id string, errorMessage string, processingTimeMs int64) (bool, error)

	// SetArchivePath records where the original upload was archived.
	SetArchivePath(ctx context.Context, id, path string) error

	// CountByStatusSince counts a user's entries with the given status created at or after since.
	CountByStatusSince(ctx context.Context, userID, status string, since time.Time) (int, error)
}
