package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"invoicesheet/internal/model"
	"invoicesheet/internal/repository"
)

// Ledger enforces the rolling monthly quota and owns the usage-log lifecycle.
// The quota check and entry creation are deliberately not wrapped in a
// transaction: two concurrent uploads from one user can both pass the check
// before either entry is counted. That bounded over-admission is accepted
// over a per-user serializing lock.
type Ledger struct {
	logs     repository.UsageLogRepository
	profiles repository.ProfileRepository
	logger   *zap.Logger
	now      func() time.Time
}

// New constructs a Ledger.
func New(logs repository.UsageLogRepository, profiles repository.ProfileRepository, logger *zap.Logger) *Ledger {
	return &Ledger{
		logs:     logs,
		profiles: profiles,
		logger:   logger,
		now:      time.Now,
	}
}

// startOfMonth returns the first instant of the current calendar month in UTC.
func (l *Ledger) startOfMonth() time.Time {
	now := l.now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (l *Ledger) monthlyLimit(ctx context.Context, userID string) (int, error) {
	profile, err := l.profiles.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.DefaultMonthlyLimit, nil
		}
		return 0, err
	}
	if profile.MonthlyLimit <= 0 {
		return model.DefaultMonthlyLimit, nil
	}
	return profile.MonthlyLimit, nil
}

// CheckQuota counts the user's successful runs this calendar month against
// the configured limit. It fails closed: when the count cannot be determined
// the attempt is denied.
func (l *Ledger) CheckQuota(ctx context.Context, userID string) (allowed bool, remaining int, err error) {
	limit, err := l.monthlyLimit(ctx, userID)
	if err != nil {
		return false, 0, fmt.Errorf("load monthly limit: %w", err)
	}

	used, err := l.logs.CountByStatusSince(ctx, userID, model.StatusSuccess, l.startOfMonth())
	if err != nil {
		return false, 0, fmt.Errorf("count monthly usage: %w", err)
	}

	remaining = limit - used
	if remaining < 0 {
		remaining = 0
	}
	return used < limit, remaining, nil
}

// OpenEntry inserts a 'processing' entry. It must complete before any other
// external call so a crash mid-pipeline still leaves an auditable trace.
func (l *Ledger) OpenEntry(ctx context.Context, userID, fileName string, fileSize int64) (string, error) {
	entry := &model.UsageLogEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		FileName:  fileName,
		FileSize:  fileSize,
		Status:    model.StatusProcessing,
		CreatedAt: l.now().UTC(),
	}
	stored, err := l.logs.Create(ctx, entry)
	if err != nil {
		return "", fmt.Errorf("create usage log: %w", err)
	}
	return stored.ID, nil
}

// FinalizeSuccess transitions an entry to 'success'. Calling it again for an
// already-finalized entry is a no-op, guarding against retried orchestration.
func (l *Ledger) FinalizeSuccess(ctx context.Context, entryID string, payload []byte, durationMs int64, tokensUsed *int) error {
	updated, err := l.logs.MarkSuccess(ctx, entryID, payload, durationMs, tokensUsed)
	if err != nil {
		return fmt.Errorf("finalize usage log: %w", err)
	}
	if !updated {
		l.logger.Warn("usage log already finalized, skipping",
			zap.String("entry_id", entryID))
	}
	return nil
}

// FinalizeFailure transitions an entry to 'failed' with the error message.
func (l *Ledger) FinalizeFailure(ctx context.Context, entryID, errorMessage string, durationMs int64) error {
	updated, err := l.logs.MarkFailed(ctx, entryID, errorMessage, durationMs)
	if err != nil {
		return fmt.Errorf("finalize usage log: %w", err)
	}
	if !updated {
		l.logger.Warn("usage log already finalized, skipping",
			zap.String("entry_id", entryID))
	}
	return nil
}

// AttachArchive records the object storage key of the archived upload.
func (l *Ledger) AttachArchive(ctx context.Context, entryID, path string) error {
	return l.logs.SetArchivePath(ctx, entryID, path)
}

// MonthlyUsage aggregates the active calendar month for the usage endpoint.
func (l *Ledger) MonthlyUsage(ctx context.Context, userID string) (*model.UsageSummary, error) {
	limit, err := l.monthlyLimit(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load monthly limit: %w", err)
	}

	since := l.startOfMonth()
	used, err := l.logs.CountByStatusSince(ctx, userID, model.StatusSuccess, since)
	if err != nil {
		return nil, fmt.Errorf("count monthly usage: %w", err)
	}
	failed, err := l.logs.CountByStatusSince(ctx, userID, model.StatusFailed, since)
	if err != nil {
		return nil, fmt.Errorf("count monthly failures: %w", err)
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return &model.UsageSummary{
		MonthlyLimit: limit,
		CurrentUsage: used,
		Remaining:    remaining,
		Failed:       failed,
	}, nil
}
