package mocks

import (
	"context"

	"docgen/internal/model"
	"github.com/stretchr/testify/mock"
)

type MockRegistryStore struct {
	mock.Mock
}

func (m *MockRegistryStore) Load(ctx context.Context) ([]model.Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *MockRegistryStore) Save(ctx context.Context, docs []model.Document) error {
	args := m.Called(ctx, docs)
	return args.Error(0)
}

func (m *MockRegistryStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
