package mocks

import (
	"context"
	"time"

	"invoicesheet/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockUsageLogRepository struct {
	mock.Mock
}

func (m *MockUsageLogRepository) Create(ctx context.Context, entry *model.UsageLogEntry) (*model.UsageLogEntry, error) {
	args := m.Called(ctx, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UsageLogEntry), args.Error(1)
}

func (m *MockUsageLogRepository) FindByID(ctx context.Context, id string) (*model.UsageLogEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UsageLogEntry), args.Error(1)
}

func (m *MockUsageLogRepository) MarkSuccess(ctx context.Context, id string, extractedData []byte, processingTimeMs int64, tokensUsed *int) (bool, error) {
	args := m.Called(ctx, id, extractedData, processingTimeMs, tokensUsed)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsageLogRepository) MarkFailed(ctx context.Context, id string, errorMessage string, processingTimeMs int64) (bool, error) {
	args := m.Called(ctx, id, errorMessage, processingTimeMs)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsageLogRepository) SetArchivePath(ctx context.Context, id, path string) error {
	args := m.Called(ctx, id, path)
	return args.Error(0)
}

func (m *MockUsageLogRepository) CountByStatusSince(ctx context.Context, userID, status string, since time.Time) (int, error) {
	args := m.Called(ctx, userID, status, since)
	return args.Int(0), args.Error(1)
}
