package postgres

import (
	"context"
	"database/sql"
	"time"

	"invoicesheet/internal/metrics"
	"invoicesheet/internal/model"
	"invoicesheet/internal/repository"
)

// UsageLogPostgres is a PostgreSQL implementation of repository.UsageLogRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type UsageLogPostgres struct {
	db *sql.DB
	m  *metrics.Metrics
}

// NewUsageLogPostgres creates a new UsageLogPostgres repository.
// The metrics argument may be nil; datastore calls are then not counted.
func NewUsageLogPostgres(db *sql.DB, m *metrics.Metrics) *UsageLogPostgres {
	return &UsageLogPostgres{db: db, m: m}
}

var _ repository.UsageLogRepository = (*UsageLogPostgres)(nil)

func (r *UsageLogPostgres) record(operation string) {
	if r.m != nil {
		r.m.RecordDBCall(operation, "usage_logs")
	}
}

// Create inserts a new usage log row and returns the stored record.
func (r *UsageLogPostgres) Create(ctx context.Context, entry *model.UsageLogEntry) (*model.UsageLogEntry, error) {
	r.record("insert")
	const q = `
		INSERT INTO usage_logs (id, user_id, file_name, file_size, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, file_name, file_size, status, created_at
	`
	row := r.db.QueryRowContext(ctx, q,
		entry.ID,
		entry.UserID,
		entry.FileName,
		entry.FileSize,
		entry.Status,
		entry.CreatedAt,
	)
	var out model.UsageLogEntry
	if err := row.Scan(
		&out.ID,
		&out.UserID,
		&out.FileName,
		&out.FileSize,
		&out.Status,
		&out.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByID fetches a single usage log entry by its ID.
func (r *UsageLogPostgres) FindByID(ctx context.Context, id string) (*model.UsageLogEntry, error) {
	r.record("select")
	const q = `
		SELECT id, user_id, file_name, file_size, status, extracted_data,
		       error_message, processing_time_ms, tokens_used, archive_path,
		       created_at, finalized_at
		FROM usage_logs
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, q, id)
	var e model.UsageLogEntry
	if err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.FileName,
		&e.FileSize,
		&e.Status,
		&e.ExtractedData,
		&e.ErrorMessage,
		&e.ProcessingTimeMs,
		&e.TokensUsed,
		&e.ArchivePath,
		&e.CreatedAt,
		&e.FinalizedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

// MarkSuccess finalizes an entry as success. The status guard makes the
// transition a no-op when the entry already left 'processing'.
func (r *UsageLogPostgres) MarkSuccess(ctx context.Context, id string, extractedData []byte, processingTimeMs int64, tokensUsed *int) (bool, error) {
	r.record("update")
	const q = `
		UPDATE usage_logs
		SET status = 'success', extracted_data = $2, processing_time_ms = $3,
		    tokens_used = $4, finalized_at = now()
		WHERE id = $1 AND status = 'processing'
	`
	res, err := r.db.ExecContext(ctx, q, id, extractedData, processingTimeMs, tokensUsed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkFailed finalizes an entry as failed with the same status guard as MarkSuccess.
func (r *UsageLogPostgres) MarkFailed(ctx context.Context, id string, errorMessage string, processingTimeMs int64) (bool, error) {
	r.record("update")
	const q = `
		UPDATE usage_logs
		SET status = 'failed', error_message = $2, processing_time_ms = $3,
		    finalized_at = now()
		WHERE id = $1 AND status = 'processing'
	`
	res, err := r.db.ExecContext(ctx, q, id, errorMessage, processingTimeMs)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetArchivePath records the object storage key of the archived upload.
func (r *UsageLogPostgres) SetArchivePath(ctx context.Context, id, path string) error {
	r.record("update")
	const q = `UPDATE usage_logs SET archive_path = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id, path)
	return err
}

// CountByStatusSince counts a user's entries with the given status created at or after since.
func (r *UsageLogPostgres) CountByStatusSince(ctx context.Context, userID, status string, since time.Time) (int, error) {
	r.record("select")
	const q = `
		SELECT COUNT(*)
		FROM usage_logs
		WHERE user_id = $1 AND status = $2 AND created_at >= $3
	`
	var count int
	if err := r.db.QueryRowContext(ctx, q, userID, status, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
