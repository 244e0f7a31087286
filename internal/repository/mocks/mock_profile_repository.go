package mocks

import (
	"context"

	"invoicesheet/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserProfile), args.Error(1)
}

func (m *MockProfileRepository) UpsertSheetID(ctx context.Context, id string, email *string, sheetID string) error {
	args := m.Called(ctx, id, email, sheetID)
	return args.Error(0)
}

func (m *MockProfileRepository) UpsertRefreshToken(ctx context.Context, id string, email *string, refreshToken string) error {
	args := m.Called(ctx, id, email, refreshToken)
	return args.Error(0)
}
