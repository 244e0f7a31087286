package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"invoicesheet/internal/credentials"
	"invoicesheet/internal/extract"
	"invoicesheet/internal/ledger"
	"invoicesheet/internal/metrics"
	"invoicesheet/internal/model"
	"invoicesheet/internal/repository"
	"invoicesheet/internal/sheets"
	"invoicesheet/internal/storage"
)

var (
	ErrEmptyFile         = errors.New("uploaded file is empty")
	ErrNoSheetConfigured = errors.New("no target spreadsheet configured")
	ErrNoCredential      = errors.New("no google account linked")
	ErrQuotaExceeded     = errors.New("monthly quota exceeded")
	ErrEntryNotFound     = errors.New("usage entry not found")
	ErrNoArchive         = errors.New("no archived file for entry")
)

// Stage names the pipeline phase a failure originated from, so the HTTP
// layer can map it to a status code without inspecting adapter internals.
type Stage string

const (
	StageExtraction  Stage = "extraction"
	StageCredentials Stage = "credentials"
	StageSpreadsheet Stage = "spreadsheet"
	StageInternal    Stage = "internal"
)

// PipelineError wraps a failure that occurred after the usage entry was
// opened. UserMsg is safe to return to the caller; Err carries the detail.
type PipelineError struct {
	Stage   Stage
	UserMsg string
	Err     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// ProcessInput is one uploaded invoice.
type ProcessInput struct {
	UserID   string
	FileName string
	MimeType string
	Data     []byte
}

// ProcessResult is returned after the row has been appended and the usage
// entry finalized.
type ProcessResult struct {
	EntryID      string               `json:"entry_id"`
	Tab          string               `json:"tab"`
	Record       *model.InvoiceRecord `json:"record"`
	Remaining    int                  `json:"remaining"`
	Tokens       *int                 `json:"tokens_used,omitempty"`
	ProcessingMs int64                `json:"processing_time_ms"`
}

// InvoiceService defines the use cases exposed over HTTP.
type InvoiceService interface {
	// Process runs the full pipeline: quota check, usage entry, archival,
	// extraction, token refresh, spreadsheet append, finalization.
	Process(ctx context.Context, in ProcessInput) (*ProcessResult, error)

	// Usage aggregates the caller's current calendar month.
	Usage(ctx context.Context, userID string) (*model.UsageSummary, error)

	// Profile returns the caller's pipeline configuration.
	Profile(ctx context.Context, userID string) (*model.UserProfile, error)

	// SetSheetID stores the target spreadsheet id, creating the profile if absent.
	SetSheetID(ctx context.Context, userID string, email *string, sheetID string) error

	// SetRefreshToken stores the Google refresh token, creating the profile if absent.
	SetRefreshToken(ctx context.Context, userID string, email *string, token string) error

	// ArchiveURL presigns a download link for the archived original upload.
	ArchiveURL(ctx context.Context, userID, entryID string) (string, error)
}

const (
	extractAttempts  = 2 // one retry on transient extraction failures
	writeAttempts    = 3 // bounded backoff on spreadsheet rate limits
	archiveURLExpiry = 15 * time.Minute
)

type processor struct {
	ledger    *ledger.Ledger
	profiles  repository.ProfileRepository
	logs      repository.UsageLogRepository
	extractor extract.Extractor
	refresher credentials.Refresher
	writer    sheets.Writer
	archive   storage.Archive
	metrics   *metrics.Metrics
	logger    *zap.Logger

	now         func() time.Time
	backoffBase time.Duration
}

// NewProcessor wires the pipeline. archive may be nil, which disables
// original-upload retention without affecting processing.
func NewProcessor(
	lg *ledger.Ledger,
	profiles repository.ProfileRepository,
	logs repository.UsageLogRepository,
	extractor extract.Extractor,
	refresher credentials.Refresher,
	writer sheets.Writer,
	archive storage.Archive,
	m *metrics.Metrics,
	logger *zap.Logger,
) InvoiceService {
	return &processor{
		ledger:      lg,
		profiles:    profiles,
		logs:        logs,
		extractor:   extractor,
		refresher:   refresher,
		writer:      writer,
		archive:     archive,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
		backoffBase: 500 * time.Millisecond,
	}
}

func (p *processor) Process(ctx context.Context, in ProcessInput) (*ProcessResult, error) {
	if len(in.Data) == 0 {
		return nil, ErrEmptyFile
	}

	profile, err := p.profiles.FindByID(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSheetConfigured
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if !profile.HasSheetConfig() {
		return nil, ErrNoSheetConfigured
	}
	if !profile.HasCredential() {
		return nil, ErrNoCredential
	}

	allowed, remaining, err := p.ledger.CheckQuota(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("check quota: %w", err)
	}
	if !allowed {
		return nil, ErrQuotaExceeded
	}

	entryID, err := p.ledger.OpenEntry(ctx, in.UserID, in.FileName, int64(len(in.Data)))
	if err != nil {
		return nil, fmt.Errorf("open usage entry: %w", err)
	}

	// From here the entry must be finalized exactly once, even if the
	// caller disconnects mid-pipeline.
	dctx := context.WithoutCancel(ctx)
	started := p.now()

	result, perr := p.run(dctx, profile, entryID, in, remaining)
	elapsed := p.now().Sub(started)

	if perr != nil {
		if ferr := p.ledger.FinalizeFailure(dctx, entryID, perr.UserMsg, elapsed.Milliseconds()); ferr != nil {
			p.logger.Error("finalize failure did not persist",
				zap.String("entry_id", entryID), zap.Error(ferr))
		}
		p.observe(model.StatusFailed, elapsed)
		return nil, perr
	}

	payload, err := json.Marshal(result.Record)
	if err != nil {
		payload = []byte("{}")
	}
	if ferr := p.ledger.FinalizeSuccess(dctx, entryID, payload, elapsed.Milliseconds(), result.Tokens); ferr != nil {
		p.logger.Error("finalize success did not persist",
			zap.String("entry_id", entryID), zap.Error(ferr))
	}
	p.observe(model.StatusSuccess, elapsed)

	result.EntryID = entryID
	result.ProcessingMs = elapsed.Milliseconds()
	return result, nil
}

// run executes the fallible middle of the pipeline. Panics from adapters are
// recovered into a generic internal failure so the entry is still finalized.
func (p *processor) run(ctx context.Context, profile *model.UserProfile, entryID string, in ProcessInput, remaining int) (result *ProcessResult, perr *PipelineError) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panic recovered",
				zap.String("entry_id", entryID), zap.Any("panic", r))
			result = nil
			perr = &PipelineError{
				Stage:   StageInternal,
				UserMsg: "internal processing error",
				Err:     fmt.Errorf("panic: %v", r),
			}
		}
	}()

	p.archiveUpload(ctx, entryID, in)

	rec, usage, err := p.extract(ctx, in)
	if err != nil {
		return nil, extractionError(err)
	}
	// inconsistent totals are still written, the row is the user's to review
	if !rec.TotalsConsistent() {
		p.logger.Warn("extracted totals do not add up",
			zap.String("entry_id", entryID),
			zap.Float64("total_ht", rec.TotalHT),
			zap.Float64("vat", rec.VAT),
			zap.Float64("total_ttc", rec.TotalTTC))
	}

	token, _, err := p.refresher.AccessToken(ctx, profile.RefreshToken)
	if err != nil {
		return nil, &PipelineError{
			Stage:   StageCredentials,
			UserMsg: "google credential rejected, re-link your account",
			Err:     err,
		}
	}

	tab, err := p.writeRow(ctx, token, profile.TargetSheetID, rec)
	if err != nil {
		return nil, spreadsheetError(err)
	}

	res := &ProcessResult{
		Tab:    tab,
		Record: rec,
		// the run that is finalizing consumes one slot
		Remaining: remaining - 1,
	}
	if usage != nil {
		tokens := usage.TotalTokens
		res.Tokens = &tokens
	}
	return res, nil
}

// archiveUpload stores the original bytes best-effort: a storage outage
// must not block invoice processing.
func (p *processor) archiveUpload(ctx context.Context, entryID string, in ProcessInput) {
	if p.archive == nil {
		return
	}
	key := storage.ArchiveKey(in.UserID, entryID, in.FileName)
	_, err := p.archive.Put(ctx, key, bytes.NewReader(in.Data), storage.PutOptions{
		Size:        int64(len(in.Data)),
		ContentType: in.MimeType,
		Metadata:    map[string]string{"original-filename": in.FileName},
	})
	if err != nil {
		p.logger.Warn("archive upload failed, continuing",
			zap.String("entry_id", entryID), zap.Error(err))
		return
	}
	if err := p.ledger.AttachArchive(ctx, entryID, key); err != nil {
		// the audit row is authoritative: an object it does not reference
		// must not linger
		p.logger.Warn("archive path not recorded, removing object",
			zap.String("entry_id", entryID), zap.Error(err))
		if delErr := p.archive.Delete(ctx, key); delErr != nil {
			p.logger.Warn("archive rollback delete failed",
				zap.String("key", key), zap.Error(delErr))
		}
	}
}

func (p *processor) extract(ctx context.Context, in ProcessInput) (*model.InvoiceRecord, *extract.Usage, error) {
	var lastErr error
	for attempt := 1; attempt <= extractAttempts; attempt++ {
		rec, usage, err := p.extractor.Extract(ctx, in.Data, in.FileName, in.MimeType)
		if err == nil {
			return rec, usage, nil
		}
		lastErr = err

		var extErr *extract.Error
		if !errors.As(err, &extErr) || !extErr.Transient() {
			break
		}
		if attempt < extractAttempts {
			p.logger.Warn("transient extraction failure, retrying",
				zap.Int("attempt", attempt), zap.Error(err))
		}
	}
	return nil, nil, lastErr
}

func (p *processor) writeRow(ctx context.Context, token, sheetID string, rec *model.InvoiceRecord) (string, error) {
	delay := p.backoffBase
	var lastErr error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		tab, err := p.writer.WriteRow(ctx, token, sheetID, p.now().UTC(), rec)
		if err == nil {
			return tab, nil
		}
		lastErr = err

		var sheetErr *sheets.Error
		if !errors.As(err, &sheetErr) || !sheetErr.Retryable() {
			break
		}
		if attempt < writeAttempts {
			p.logger.Warn("spreadsheet rate limited, backing off",
				zap.Int("attempt", attempt), zap.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			delay *= 2
		}
	}
	return "", lastErr
}

func (p *processor) observe(status string, elapsed time.Duration) {
	if p.metrics != nil {
		p.metrics.ObserveProcessing(status, elapsed.Seconds())
	}
}

func extractionError(err error) *PipelineError {
	pe := &PipelineError{Stage: StageExtraction, Err: err}
	var extErr *extract.Error
	if errors.As(err, &extErr) {
		switch extErr.Kind {
		case extract.KindRejected:
			pe.UserMsg = "file could not be read as an invoice"
		case extract.KindParse:
			pe.UserMsg = "extraction returned an unusable response"
		default:
			pe.UserMsg = "extraction service unavailable, try again later"
		}
		return pe
	}
	pe.UserMsg = "extraction failed"
	return pe
}

func spreadsheetError(err error) *PipelineError {
	pe := &PipelineError{Stage: StageSpreadsheet, Err: err}
	var sheetErr *sheets.Error
	if errors.As(err, &sheetErr) {
		switch sheetErr.Kind {
		case sheets.KindAuth:
			pe.Stage = StageCredentials
			pe.UserMsg = "google credential rejected, re-link your account"
		case sheets.KindNotFound:
			pe.UserMsg = "target spreadsheet not found, check its id"
		case sheets.KindRateLimit:
			pe.UserMsg = "spreadsheet api quota exhausted, try again later"
		default:
			pe.UserMsg = "spreadsheet write failed"
		}
		return pe
	}
	pe.UserMsg = "spreadsheet write failed"
	return pe
}

func (p *processor) Usage(ctx context.Context, userID string) (*model.UsageSummary, error) {
	return p.ledger.MonthlyUsage(ctx, userID)
}

func (p *processor) Profile(ctx context.Context, userID string) (*model.UserProfile, error) {
	profile, err := p.profiles.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// an unconfigured caller still gets a well-formed profile view
			return &model.UserProfile{ID: userID, MonthlyLimit: model.DefaultMonthlyLimit}, nil
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return profile, nil
}

func (p *processor) SetSheetID(ctx context.Context, userID string, email *string, sheetID string) error {
	if sheetID == "" {
		return errors.New("sheet id is required")
	}
	return p.profiles.UpsertSheetID(ctx, userID, email, sheetID)
}

func (p *processor) SetRefreshToken(ctx context.Context, userID string, email *string, token string) error {
	if token == "" {
		return errors.New("refresh token is required")
	}
	return p.profiles.UpsertRefreshToken(ctx, userID, email, token)
}

func (p *processor) ArchiveURL(ctx context.Context, userID, entryID string) (string, error) {
	if p.archive == nil {
		return "", ErrNoArchive
	}
	entry, err := p.logs.FindByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrEntryNotFound
		}
		return "", fmt.Errorf("load usage entry: %w", err)
	}
	if entry.UserID != userID {
		return "", ErrEntryNotFound
	}
	if entry.ArchivePath == nil || *entry.ArchivePath == "" {
		return "", ErrNoArchive
	}
	return p.archive.PresignGet(ctx, *entry.ArchivePath, archiveURLExpiry)
}
