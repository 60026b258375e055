package mocks

import (
	"context"

	"docgen/internal/model"
	"docgen/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) UploadBatch(ctx context.Context, files []model.FileCandidate) service.BatchOutcome {
	args := m.Called(ctx, files)
	return args.Get(0).(service.BatchOutcome)
}

func (m *MockDocumentService) List(ctx context.Context, q service.Query) service.Page {
	args := m.Called(ctx, q)
	return args.Get(0).(service.Page)
}

func (m *MockDocumentService) Get(ctx context.Context, id string) (*model.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDocumentService) Regenerate(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDocumentService) NewArtifactView() service.ArtifactViewer {
	args := m.Called()
	return args.Get(0).(service.ArtifactViewer)
}

func (m *MockDocumentService) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockArtifactViewer struct {
	mock.Mock
}

func (m *MockArtifactViewer) Show(ctx context.Context, documentID string) (*model.Artifact, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Artifact), args.Error(1)
}

func (m *MockArtifactViewer) Close() {
	m.Called()
}
