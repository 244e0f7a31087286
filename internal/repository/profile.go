package repository

import (
	"context"

	"invoicesheet/internal/model"
)

// ProfileRepository defines data access for user pipeline configuration.
// The processing pipeline only reads profiles; writes happen through the
// configuration endpoints and the out-of-band credential capture flow.
type ProfileRepository interface {
	// FindByID returns a profile by user ID. Missing rows surface as sql.ErrNoRows.
	FindByID(ctx context.Context, id string) (*model.UserProfile, error)

	// UpsertSheetID creates or updates the profile's target spreadsheet ID.
	UpsertSheetID(ctx context.Context, id string, email *string, sheetID string) error

	// UpsertRefreshToken creates or updates the profile's stored refresh credential.
	UpsertRefreshToken(ctx context.Context, id string, email *string, refreshToken string) error
}
