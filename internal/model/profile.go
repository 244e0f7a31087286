package model

import "time"

// DefaultMonthlyLimit applies when a profile does not set its own quota.
const DefaultMonthlyLimit = 100

// UserProfile holds per-user pipeline configuration. The stored refresh
// token is populated out of band after the user authorizes spreadsheet
// access; the pipeline only reads it.
// Unset optional columns are carried as empty strings; the repository
// coalesces NULLs on read.
type UserProfile struct {
	ID            string    `json:"id"`
	Email         string    `json:"email,omitempty"`
	RefreshToken  string    `json:"-"`
	TargetSheetID string    `json:"target_sheet_id,omitempty"`
	MonthlyLimit  int       `json:"monthly_limit"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasSheetConfig reports whether the profile is configured for writes.
func (p *UserProfile) HasSheetConfig() bool {
	return p.TargetSheetID != ""
}

// HasCredential reports whether a stored refresh token is present.
func (p *UserProfile) HasCredential() bool {
	return p.RefreshToken != ""
}
