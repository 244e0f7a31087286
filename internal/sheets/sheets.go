package sheets

import (
	"context"
	"fmt"
	"time"

	"invoicesheet/internal/model"
)

// HeaderRow is the fixed schema written as the first row of every run tab.
var HeaderRow = []string{"Shop Name", "Date", "Total HT", "Total TTC", "VAT", "Items"}

// TabName derives the run tab title from the processing timestamp truncated
// to minute granularity: invoices processed within the same minute bucket
// share a tab.
func TabName(ts time.Time) string {
	return "Run_" + ts.Format("2006-01-02_1504")
}

// Kind classifies spreadsheet failures for the orchestrator's retry policy.
type Kind int

const (
	// KindAuth means the access token was rejected. Not retried here; the
	// orchestrator must have refreshed the token first.
	KindAuth Kind = iota
	// KindNotFound means the target spreadsheet id is misconfigured.
	KindNotFound
	// KindRateLimit is the only retryable kind (bounded backoff upstream).
	KindRateLimit
	// KindInternal covers everything else (5xx, malformed responses).
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindRateLimit:
		return "rate_limit"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the typed spreadsheet failure surfaced to the orchestrator.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("spreadsheet %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("spreadsheet %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether bounded backoff is worthwhile.
func (e *Error) Retryable() bool { return e.Kind == KindRateLimit }

// Writer appends one invoice row to the run tab of the target spreadsheet,
// creating the tab with its header row when absent.
type Writer interface {
	WriteRow(ctx context.Context, accessToken, spreadsheetID string, ts time.Time, rec *model.InvoiceRecord) (tabName string, err error)
}
