package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docgen/internal/metrics"
	"docgen/internal/model"
	"docgen/internal/processing"
	"docgen/internal/registry"
)

// DefaultMaxBatchSize is used when the configured batch size is not positive.
const DefaultMaxBatchSize = 5

// shutdownDetail is recorded on documents uploaded while the trigger was closing.
const shutdownDetail = "generation unavailable: service is shutting down"

// BatchOutcome reports what happened to one upload batch.
// Oversized files are excluded silently and appear in neither list.
type BatchOutcome struct {
	Succeeded []model.DocumentRef   `json:"succeeded"`
	Failed    []model.UploadFailure `json:"failed"`
	Truncated int                   `json:"truncated"`
}

// Summary is the human readable result line, e.g. "2 uploaded, 1 failed".
func (o BatchOutcome) Summary() string {
	return fmt.Sprintf("%d uploaded, %d failed", len(o.Succeeded), len(o.Failed))
}

// generationStarter is the part of GenerationTrigger the coordinator needs.
type generationStarter interface {
	Start(id string) error
}

// UploadCoordinator submits a batch of files concurrently and registers each success.
type UploadCoordinator struct {
	reg          *registry.Registry
	client       processing.Client
	trigger      generationStarter
	maxFileSize  int64
	maxBatchSize int
	metrics      *metrics.Pipeline
	log          *zap.Logger
	now          func() time.Time
}

// NewUploadCoordinator builds a coordinator. maxFileSize is the per-file cap in bytes.
func NewUploadCoordinator(reg *registry.Registry, client processing.Client, trigger generationStarter, maxFileSize int64, maxBatchSize int, m *metrics.Pipeline, log *zap.Logger) *UploadCoordinator {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &UploadCoordinator{
		reg:          reg,
		client:       client,
		trigger:      trigger,
		maxFileSize:  maxFileSize,
		maxBatchSize: maxBatchSize,
		metrics:      m,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// UploadBatch filters, truncates and submits candidates. It returns once every
// kept candidate has either been registered or reported as failed.
func (u *UploadCoordinator) UploadBatch(ctx context.Context, candidates []model.FileCandidate) BatchOutcome {
	kept := make([]model.FileCandidate, 0, len(candidates))
	for _, c := range candidates {
		if u.maxFileSize > 0 && c.SizeBytes > u.maxFileSize {
			continue
		}
		kept = append(kept, c)
	}
	u.metrics.Upload("excluded", len(candidates)-len(kept))

	var out BatchOutcome
	if len(kept) > u.maxBatchSize {
		out.Truncated = len(kept) - u.maxBatchSize
		kept = kept[:u.maxBatchSize]
		u.metrics.Upload("truncated", out.Truncated)
	}

	// Slots keep the outcome lists in input order regardless of completion order.
	refs := make([]*model.DocumentRef, len(kept))
	fails := make([]*model.UploadFailure, len(kept))

	var g errgroup.Group
	for i, c := range kept {
		g.Go(func() error {
			ref, err := u.uploadOne(ctx, c)
			if err != nil {
				fails[i] = &model.UploadFailure{Name: c.Name, Reason: uploadReason(err)}
				u.log.Warn("upload failed", zap.String("name", c.Name), zap.Error(err))
				return nil
			}
			refs[i] = &ref
			return nil
		})
	}
	_ = g.Wait()

	out.Succeeded = make([]model.DocumentRef, 0, len(kept))
	out.Failed = make([]model.UploadFailure, 0)
	for i := range kept {
		switch {
		case refs[i] != nil:
			out.Succeeded = append(out.Succeeded, *refs[i])
		case fails[i] != nil:
			out.Failed = append(out.Failed, *fails[i])
		}
	}
	u.metrics.Upload("succeeded", len(out.Succeeded))
	u.metrics.Upload("failed", len(out.Failed))
	u.log.Info("upload batch finished",
		zap.Int("succeeded", len(out.Succeeded)),
		zap.Int("failed", len(out.Failed)),
		zap.Int("excluded", len(candidates)-len(kept)-out.Truncated),
		zap.Int("truncated", out.Truncated),
	)
	return out
}

func (u *UploadCoordinator) uploadOne(ctx context.Context, c model.FileCandidate) (model.DocumentRef, error) {
	if c.Open == nil {
		return model.DocumentRef{}, errors.New("file has no content")
	}
	rc, err := c.Open()
	if err != nil {
		return model.DocumentRef{}, fmt.Errorf("open %s: %w", c.Name, err)
	}
	id, err := u.client.Upload(ctx, c.Name, c.ContentType, rc)
	_ = rc.Close()
	if err != nil {
		return model.DocumentRef{}, err
	}

	doc := model.Document{
		ID:        id,
		Name:      c.Name,
		SizeBytes: c.SizeBytes,
		CreatedAt: u.now(),
		Status:    model.StatusUploading,
	}
	if err := u.reg.Insert(doc); err != nil {
		return model.DocumentRef{}, err
	}

	if err := u.trigger.Start(id); err != nil {
		u.log.Warn("generation hand-off refused", zap.String("document_id", id), zap.Error(err))
		if uerr := u.reg.UpdateStatus(id, model.StatusUploadFailed, shutdownDetail); uerr != nil {
			u.log.Error("record hand-off failure", zap.String("document_id", id), zap.Error(uerr))
		}
	}
	return model.DocumentRef{ID: id, Name: c.Name}, nil
}

func uploadReason(err error) string {
	var rej *processing.UploadRejectedError
	switch {
	case errors.As(err, &rej):
		return rej.Reason
	case errors.Is(err, registry.ErrDuplicateID):
		return "duplicate document id returned by service"
	case errors.Is(err, processing.ErrServiceUnreachable):
		return processing.ErrServiceUnreachable.Error()
	default:
		return "could not read file"
	}
}
