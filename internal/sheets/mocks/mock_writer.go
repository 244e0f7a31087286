package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"invoicesheet/internal/model"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) WriteRow(ctx context.Context, accessToken, spreadsheetID string, ts time.Time, rec *model.InvoiceRecord) (string, error) {
	args := m.Called(ctx, accessToken, spreadsheetID, ts, rec)
	return args.String(0), args.Error(1)
}
