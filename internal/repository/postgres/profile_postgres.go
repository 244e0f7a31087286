package postgres

import (
	"context"
	"database/sql"

	"invoicesheet/internal/metrics"
	"invoicesheet/internal/model"
	"invoicesheet/internal/repository"
)

// ProfilePostgres is a PostgreSQL implementation of repository.ProfileRepository.
type ProfilePostgres struct {
	db *sql.DB
	m  *metrics.Metrics
}

// NewProfilePostgres creates a new ProfilePostgres repository.
func NewProfilePostgres(db *sql.DB, m *metrics.Metrics) *ProfilePostgres {
	return &ProfilePostgres{db: db, m: m}
}

var _ repository.ProfileRepository = (*ProfilePostgres)(nil)

func (r *ProfilePostgres) record(operation string) {
	if r.m != nil {
		r.m.RecordDBCall(operation, "profiles")
	}
}

// FindByID fetches a profile by user ID.
func (r *ProfilePostgres) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	r.record("select")
	const q = `
		SELECT id, COALESCE(email, ''), COALESCE(refresh_token, ''), COALESCE(target_sheet_id, ''),
		       monthly_limit, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, q, id)
	var p model.UserProfile
	if err := row.Scan(
		&p.ID,
		&p.Email,
		&p.RefreshToken,
		&p.TargetSheetID,
		&p.MonthlyLimit,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertSheetID creates or updates the target spreadsheet ID for a user.
func (r *ProfilePostgres) UpsertSheetID(ctx context.Context, id string, email *string, sheetID string) error {
	r.record("upsert")
	const q = `
		INSERT INTO profiles (id, email, target_sheet_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET target_sheet_id = EXCLUDED.target_sheet_id,
		    email = COALESCE(EXCLUDED.email, profiles.email),
		    updated_at = now()
	`
	_, err := r.db.ExecContext(ctx, q, id, email, sheetID)
	return err
}

// UpsertRefreshToken creates or updates the stored refresh credential for a user.
func (r *ProfilePostgres) UpsertRefreshToken(ctx context.Context, id string, email *string, refreshToken string) error {
	r.record("upsert")
	const q = `
		INSERT INTO profiles (id, email, refresh_token)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET refresh_token = EXCLUDED.refresh_token,
		    email = COALESCE(EXCLUDED.email, profiles.email),
		    updated_at = now()
	`
	_, err := r.db.ExecContext(ctx, q, id, email, refreshToken)
	return err
}
