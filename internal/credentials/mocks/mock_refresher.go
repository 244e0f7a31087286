package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRefresher struct {
	mock.Mock
}

func (m *MockRefresher) AccessToken(ctx context.Context, refreshToken string) (string, time.Time, error) {
	args := m.Called(ctx, refreshToken)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}
