package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"docgen/internal/model"
	"docgen/internal/processing"
	"docgen/internal/registry"
	"docgen/internal/repository"
)

var (
	ErrIDRequired       = errors.New("id is required")
	ErrNotFound         = errors.New("document not found")
	ErrGenerating       = errors.New("document is still generating")
	ErrNotRetryable     = errors.New("only failed documents can be regenerated")
	ErrArtifactNotReady = errors.New("artifact is not ready")
	ErrGenerationFailed = errors.New("generation failed")
)

// ArtifactViewer shows one artifact at a time and releases it on Close.
type ArtifactViewer interface {
	Show(ctx context.Context, documentID string) (*model.Artifact, error)
	Close()
}

var _ ArtifactViewer = (*ArtifactView)(nil)

// DocumentService defines the use cases for handling documents.
type DocumentService interface {
	// UploadBatch submits the files and starts generation for each accepted one.
	UploadBatch(ctx context.Context, files []model.FileCandidate) BatchOutcome

	// List returns one filtered, sorted page of the registry.
	List(ctx context.Context, q Query) Page

	// Get returns a single document by its ID.
	Get(ctx context.Context, id string) (*model.Document, error)

	// Delete removes a document unless it is generating. Its cached artifact is dropped too.
	Delete(ctx context.Context, id string) error

	// Regenerate retries generation for a failed document.
	Regenerate(ctx context.Context, id string) error

	// NewArtifactView opens a view for successfully generated documents.
	NewArtifactView() ArtifactViewer

	// Health checks the registry store.
	Health(ctx context.Context) error
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	reg       *registry.Registry
	uploader  *UploadCoordinator
	trigger   *GenerationTrigger
	artifacts *ArtifactCache
	store     repository.RegistryStore
	log       *zap.Logger
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(reg *registry.Registry, uploader *UploadCoordinator, trigger *GenerationTrigger, artifacts *ArtifactCache, store repository.RegistryStore, log *zap.Logger) DocumentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &documentService{
		reg:       reg,
		uploader:  uploader,
		trigger:   trigger,
		artifacts: artifacts,
		store:     store,
		log:       log,
	}
}

func (s *documentService) UploadBatch(ctx context.Context, files []model.FileCandidate) BatchOutcome {
	return s.uploader.UploadBatch(ctx, files)
}

func (s *documentService) List(_ context.Context, q Query) Page {
	return Project(s.reg.Snapshot(), q)
}

func (s *documentService) Get(_ context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, ok := s.reg.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &doc, nil
}

func (s *documentService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}
	if err := s.reg.Delete(id); err != nil {
		switch {
		case errors.Is(err, registry.ErrNotFound):
			return ErrNotFound
		case errors.Is(err, registry.ErrGenerationInFlight):
			return ErrGenerating
		}
		return err
	}
	s.artifacts.Evict(ctx, id)
	s.log.Info("document deleted", zap.String("document_id", id))
	return nil
}

func (s *documentService) Regenerate(_ context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}
	if err := s.trigger.Regenerate(id); err != nil {
		switch {
		case errors.Is(err, registry.ErrNotFound):
			return ErrNotFound
		case errors.Is(err, registry.ErrInvalidTransition):
			return ErrNotRetryable
		}
		return err
	}
	return nil
}

func (s *documentService) NewArtifactView() ArtifactViewer {
	return NewArtifactView(s.fetchReady)
}

// fetchReady only fetches artifacts whose generation succeeded.
func (s *documentService) fetchReady(ctx context.Context, id string) (*model.Artifact, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, ok := s.reg.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	switch doc.Status {
	case model.StatusSuccess:
	case model.StatusFailed, model.StatusUploadFailed:
		detail := doc.FailureDetail
		if detail == "" {
			detail = "blueprint generation failed"
		}
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, &processing.GenerationFailedError{Detail: detail})
	default:
		return nil, fmt.Errorf("%s is %s: %w", id, doc.Status, ErrArtifactNotReady)
	}
	return s.artifacts.Fetch(ctx, id)
}

func (s *documentService) Health(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("registry store: %w", err)
	}
	if err := s.artifacts.Ping(ctx); err != nil {
		return fmt.Errorf("artifact cache: %w", err)
	}
	return nil
}
