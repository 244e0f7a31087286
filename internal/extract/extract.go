package extract

import (
	"context"
	"fmt"

	"invoicesheet/internal/model"
)

// Kind classifies extraction failures for the orchestrator's retry policy.
type Kind int

const (
	// KindRejected means the backend refused the input (unsupported type,
	// oversized file, bad request). Never retried.
	KindRejected Kind = iota
	// KindTimeout means the backend did not answer within the call timeout.
	KindTimeout
	// KindUnavailable covers 5xx-class and transport failures.
	KindUnavailable
	// KindParse means the backend answered but its response could not be
	// coerced into the fixed invoice shape. Never retried.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindRejected:
		return "rejected"
	case KindTimeout:
		return "timeout"
	case KindUnavailable:
		return "unavailable"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Error is the typed extraction failure surfaced to the orchestrator.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("extraction %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether a single orchestrator-level retry is worthwhile.
func (e *Error) Transient() bool {
	return e.Kind == KindTimeout || e.Kind == KindUnavailable
}

// Usage carries the backend's metered resource counters for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Extractor turns raw invoice file bytes into the fixed invoice record.
// Implementations do not retry; retries are an orchestrator policy decision
// because extraction cost makes blind retries expensive.
type Extractor interface {
	Extract(ctx context.Context, data []byte, fileName, mimeType string) (*model.InvoiceRecord, *Usage, error)
}
