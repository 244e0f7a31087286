package mocks

import (
	"context"

	"invoicesheet/internal/extract"
	"invoicesheet/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, data []byte, fileName, mimeType string) (*model.InvoiceRecord, *extract.Usage, error) {
	args := m.Called(ctx, data, fileName, mimeType)
	var rec *model.InvoiceRecord
	if args.Get(0) != nil {
		rec = args.Get(0).(*model.InvoiceRecord)
	}
	var usage *extract.Usage
	if args.Get(1) != nil {
		usage = args.Get(1).(*extract.Usage)
	}
	return rec, usage, args.Error(2)
}
