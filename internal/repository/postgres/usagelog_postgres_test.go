package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"invoicesheet/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestUsageLogPostgres_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewUsageLogPostgres(db, nil)
	ctx := context.Background()

	now := time.Now().UTC()
	entry := &model.UsageLogEntry{
		ID:        "log-uuid",
		UserID:    "user-uuid",
		FileName:  "facture.pdf",
		FileSize:  2048,
		Status:    model.StatusProcessing,
		CreatedAt: now,
	}

	rows := sqlmock.NewRows([]string{"id", "user_id", "file_name", "file_size", "status", "created_at"}).
		AddRow(entry.ID, entry.UserID, entry.FileName, entry.FileSize, entry.Status, entry.CreatedAt)

	mock.ExpectQuery("INSERT INTO usage_logs").
		WithArgs(entry.ID, entry.UserID, entry.FileName, entry.FileSize, entry.Status, entry.CreatedAt).
		WillReturnRows(rows)

	result, err := repo.Create(ctx, entry)

	assert.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, entry.ID, result.ID)
	assert.Equal(t, model.StatusProcessing, result.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageLogPostgres_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewUsageLogPostgres(db, nil)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{
			"id", "user_id", "file_name", "file_size", "status", "extracted_data",
			"error_message", "processing_time_ms", "tokens_used", "archive_path",
			"created_at", "finalized_at",
		}).AddRow("log-id", "user-id", "facture.pdf", 2048, "success", []byte(`{"shop_name":"Carrefour"}`),
			nil, int64(1234), 900, nil, time.Now(), time.Now())

		mock.ExpectQuery("SELECT (.+) FROM usage_logs WHERE id = ?").
			WithArgs("log-id").
			WillReturnRows(rows)

		entry, err := repo.FindByID(ctx, "log-id")

		assert.NoError(t, err)
		assert.NotNil(t, entry)
		assert.Equal(t, "log-id", entry.ID)
		assert.Equal(t, model.StatusSuccess, entry.Status)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM usage_logs WHERE id = ?").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		entry, err := repo.FindByID(ctx, "missing")

		assert.Error(t, err)
		assert.Nil(t, entry)
	})
}

func TestUsageLogPostgres_MarkSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewUsageLogPostgres(db, nil)
	ctx := context.Background()
	tokens := 900
	payload := []byte(`{"shop_name":"Carrefour"}`)

	t.Run("transitions processing entry", func(t *testing.T) {
		mock.ExpectExec("UPDATE usage_logs").
			WithArgs("log-id", payload, int64(1234), &tokens).
			WillReturnResult(sqlmock.NewResult(0, 1))

		updated, err := repo.MarkSuccess(ctx, "log-id", payload, 1234, &tokens)

		assert.NoError(t, err)
		assert.True(t, updated)
	})

	t.Run("no-op when already finalized", func(t *testing.T) {
		mock.ExpectExec("UPDATE usage_logs").
			WithArgs("log-id", payload, int64(1234), &tokens).
			WillReturnResult(sqlmock.NewResult(0, 0))

		updated, err := repo.MarkSuccess(ctx, "log-id", payload, 1234, &tokens)

		assert.NoError(t, err)
		assert.False(t, updated)
	})
}

func TestUsageLogPostgres_MarkFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewUsageLogPostgres(db, nil)
	ctx := context.Background()

	mock.ExpectExec("UPDATE usage_logs").
		WithArgs("log-id", "extraction backend timed out", int64(500)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.MarkFailed(ctx, "log-id", "extraction backend timed out", 500)

	assert.NoError(t, err)
	assert.True(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageLogPostgres_SetArchivePath(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewUsageLogPostgres(db, nil)

	mock.ExpectExec("UPDATE usage_logs SET archive_path").
		WithArgs("log-id", "invoices/abc.pdf").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.SetArchivePath(context.Background(), "log-id", "invoices/abc.pdf")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageLogPostgres_CountByStatusSince(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewUsageLogPostgres(db, nil)
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\)").
		WithArgs("user-id", "success", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := repo.CountByStatusSince(context.Background(), "user-id", "success", since)

	assert.NoError(t, err)
	assert.Equal(t, 42, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
