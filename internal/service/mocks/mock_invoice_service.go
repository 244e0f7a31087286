package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"invoicesheet/internal/model"
	"invoicesheet/internal/service"
)

type MockInvoiceService struct {
	mock.Mock
}

func (m *MockInvoiceService) Process(ctx context.Context, in service.ProcessInput) (*service.ProcessResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ProcessResult), args.Error(1)
}

func (m *MockInvoiceService) Usage(ctx context.Context, userID string) (*model.UsageSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UsageSummary), args.Error(1)
}

func (m *MockInvoiceService) Profile(ctx context.Context, userID string) (*model.UserProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserProfile), args.Error(1)
}

func (m *MockInvoiceService) SetSheetID(ctx context.Context, userID string, email *string, sheetID string) error {
	args := m.Called(ctx, userID, email, sheetID)
	return args.Error(0)
}

func (m *MockInvoiceService) SetRefreshToken(ctx context.Context, userID string, email *string, token string) error {
	args := m.Called(ctx, userID, email, token)
	return args.Error(0)
}

func (m *MockInvoiceService) ArchiveURL(ctx context.Context, userID, entryID string) (string, error) {
	args := m.Called(ctx, userID, entryID)
	return args.String(0), args.Error(1)
}
