package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	args := m.Called(ctx, filename, contentType, r)
	return args.String(0), args.Error(1)
}

func (m *MockClient) Generate(ctx context.Context, documentID string) ([]byte, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
