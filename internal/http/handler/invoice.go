package handler

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"invoicesheet/internal/extract"
	"invoicesheet/internal/http/middleware"
	"invoicesheet/internal/service"
	"invoicesheet/internal/sheets"
)

func callerID(c *fiber.Ctx) (string, error) {
	s, _ := c.Locals(middleware.UserIDLocalKey).(string)
	if s == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "missing caller identity")
	}
	return s, nil
}

// ProcessInvoice runs the pipeline synchronously for one uploaded invoice.
//
//	@Summary	Process an invoice image
//	@Accept		multipart/form-data
//	@Param		file	formData	file	true	"invoice image"
//	@Success	200
//	@Router		/api/process-invoice [post]
func ProcessInvoice(svc service.InvoiceService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := callerID(c)
		if err != nil {
			return err
		}

		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_READ_ERROR", "cannot read uploaded file")
		}

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}

		res, err := svc.Process(c.UserContext(), service.ProcessInput{
			UserID:   userID,
			FileName: fh.Filename,
			MimeType: ct,
			Data:     data,
		})
		if err != nil {
			return processError(c, err)
		}

		return c.JSON(fiber.Map{
			"success":            true,
			"data":               res.Record,
			"tab_name":           res.Tab,
			"entry_id":           res.EntryID,
			"remaining":          res.Remaining,
			"tokens_used":        res.Tokens,
			"processing_time_ms": res.ProcessingMs,
		})
	}
}

// processError translates pipeline failures into response codes: 400 for
// missing configuration, 429 for the monthly quota, 422 for terminal
// domain failures, 500 for infrastructure.
func processError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrEmptyFile):
		return writeError(c, fiber.StatusBadRequest, "EMPTY_FILE", "uploaded file is empty")
	case errors.Is(err, service.ErrNoSheetConfigured):
		return writeError(c, fiber.StatusBadRequest, "NOT_CONFIGURED", "configure a target spreadsheet first")
	case errors.Is(err, service.ErrNoCredential):
		return writeError(c, fiber.StatusBadRequest, "NOT_CONFIGURED", "link a google account first")
	case errors.Is(err, service.ErrQuotaExceeded):
		return writeError(c, fiber.StatusTooManyRequests, "QUOTA_EXCEEDED", "monthly processing quota exceeded")
	}

	var perr *service.PipelineError
	if !errors.As(err, &perr) {
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}

	switch perr.Stage {
	case service.StageExtraction:
		var extErr *extract.Error
		if errors.As(perr.Err, &extErr) && !extErr.Transient() {
			return writeError(c, fiber.StatusUnprocessableEntity, "EXTRACTION_FAILED", perr.UserMsg)
		}
		return writeError(c, fiber.StatusInternalServerError, "EXTRACTION_UNAVAILABLE", perr.UserMsg)
	case service.StageCredentials:
		return writeError(c, fiber.StatusUnprocessableEntity, "CREDENTIAL_REJECTED", perr.UserMsg)
	case service.StageSpreadsheet:
		var sheetErr *sheets.Error
		if errors.As(perr.Err, &sheetErr) && sheetErr.Kind == sheets.KindNotFound {
			return writeError(c, fiber.StatusUnprocessableEntity, "SHEET_NOT_FOUND", perr.UserMsg)
		}
		return writeError(c, fiber.StatusInternalServerError, "SHEET_WRITE_FAILED", perr.UserMsg)
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// GetUsage returns the caller's current calendar-month consumption.
func GetUsage(svc service.InvoiceService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := callerID(c)
		if err != nil {
			return err
		}
		summary, err := svc.Usage(c.UserContext(), userID)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(summary)
	}
}

// GetProfile returns the caller's pipeline configuration. The refresh
// token itself is never serialized; only its presence is reported.
func GetProfile(svc service.InvoiceService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := callerID(c)
		if err != nil {
			return err
		}
		profile, err := svc.Profile(c.UserContext(), userID)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(fiber.Map{
			"id":             profile.ID,
			"email":          profile.Email,
			"sheet_id":       profile.TargetSheetID,
			"monthly_limit":  profile.MonthlyLimit,
			"has_credential": profile.HasCredential(),
		})
	}
}

type sheetIDRequest struct {
	SheetID string  `json:"sheet_id"`
	Email   *string `json:"email"`
}

// UpdateSheetID stores the caller's target spreadsheet id.
func UpdateSheetID(svc service.InvoiceService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := callerID(c)
		if err != nil {
			return err
		}
		var req sheetIDRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		if req.SheetID == "" {
			return writeError(c, fiber.StatusBadRequest, "SHEET_ID_REQUIRED", "sheet_id is required")
		}
		if err := svc.SetSheetID(c.UserContext(), userID, req.Email, req.SheetID); err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(fiber.Map{"success": true})
	}
}

type refreshTokenRequest struct {
	RefreshToken string  `json:"refresh_token"`
	Email        *string `json:"email"`
}

// SaveRefreshToken stores the caller's Google refresh token.
func SaveRefreshToken(svc service.InvoiceService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := callerID(c)
		if err != nil {
			return err
		}
		var req refreshTokenRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		if req.RefreshToken == "" {
			return writeError(c, fiber.StatusBadRequest, "TOKEN_REQUIRED", "refresh_token is required")
		}
		if err := svc.SetRefreshToken(c.UserContext(), userID, req.Email, req.RefreshToken); err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(fiber.Map{"success": true})
	}
}

// DownloadArchive presigns a download link for the archived original upload.
func DownloadArchive(svc service.InvoiceService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := callerID(c)
		if err != nil {
			return err
		}
		url, err := svc.ArchiveURL(c.UserContext(), userID, c.Params("id"))
		if err != nil {
			switch {
			case errors.Is(err, service.ErrEntryNotFound), errors.Is(err, service.ErrNoArchive):
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "no archived file for entry")
			default:
				return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}
		return c.JSON(fiber.Map{"url": url})
	}
}

// HealthCheck reports readiness: the database must answer a ping.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe answers 200 unconditionally.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}
