package credentials

import (
	"context"
	"fmt"
	"time"
)

// Error is the typed credential failure. Always terminal for the current
// attempt: a revoked credential will not succeed on retry and requires user
// re-authorization out of band.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential: %s: %v", e.Msg, e.Err)
	}
	return "credential: " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Refresher exchanges a stored long-lived credential for a short-lived
// access token usable against the spreadsheet API.
type Refresher interface {
	AccessToken(ctx context.Context, refreshToken string) (token string, expiry time.Time, err error)
}
