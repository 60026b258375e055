package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"docgen/internal/metrics"
	"docgen/internal/model"
	"docgen/internal/processing"
	"docgen/internal/registry"
)

// ErrTriggerClosed is returned once the trigger has stopped accepting work.
var ErrTriggerClosed = errors.New("generation trigger closed")

// ArtifactWarmer receives freshly generated bytes, e.g. to fill a blob cache.
type ArtifactWarmer interface {
	Warm(ctx context.Context, documentID string, data []byte)
}

// GenerationTrigger runs one generate call per document in the background and
// writes the outcome back into the registry.
type GenerationTrigger struct {
	reg     *registry.Registry
	client  processing.Client
	timeout time.Duration
	warmer  ArtifactWarmer
	metrics *metrics.Pipeline
	log     *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewGenerationTrigger builds a trigger. warmer and m may be nil.
func NewGenerationTrigger(reg *registry.Registry, client processing.Client, timeout time.Duration, warmer ArtifactWarmer, m *metrics.Pipeline, log *zap.Logger) *GenerationTrigger {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GenerationTrigger{
		reg:     reg,
		client:  client,
		timeout: timeout,
		warmer:  warmer,
		metrics: m,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start moves an uploaded document to Generating and launches its generate call.
// It never waits for the call.
func (t *GenerationTrigger) Start(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTriggerClosed
	}
	if err := t.reg.UpdateStatus(id, model.StatusGenerating, ""); err != nil {
		return err
	}
	t.launch(id)
	return nil
}

// Regenerate retries a failed document on explicit request.
func (t *GenerationTrigger) Regenerate(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTriggerClosed
	}
	if err := t.reg.Retry(id); err != nil {
		return err
	}
	t.launch(id)
	return nil
}

// launch must be called with t.mu held.
func (t *GenerationTrigger) launch(id string) {
	t.wg.Add(1)
	go t.run(id)
}

func (t *GenerationTrigger) run(id string) {
	defer t.wg.Done()

	ctx, cancel := context.WithTimeout(t.ctx, t.timeout)
	defer cancel()

	finish := t.metrics.GenerationStarted()
	data, err := t.client.Generate(ctx, id)
	if err == nil && len(data) == 0 {
		err = processing.ErrEmptyArtifact
	}
	if err != nil {
		finish("failed")
		detail := processing.FailureDetail(err)
		t.log.Warn("generation failed", zap.String("document_id", id), zap.String("detail", detail), zap.Error(err))
		if uerr := t.reg.UpdateStatus(id, model.StatusFailed, detail); uerr != nil {
			t.log.Error("record generation failure", zap.String("document_id", id), zap.Error(uerr))
		}
		return
	}

	finish("success")
	if uerr := t.reg.UpdateStatus(id, model.StatusSuccess, ""); uerr != nil {
		t.log.Error("record generation success", zap.String("document_id", id), zap.Error(uerr))
		return
	}
	t.log.Info("generation succeeded", zap.String("document_id", id), zap.Int("bytes", len(data)))
	if t.warmer != nil {
		t.warmer.Warm(ctx, id, data)
	}
}

// Close stops accepting work and waits for in-flight calls. When ctx expires first,
// the remaining calls are cancelled and each records a failure before Close returns.
func (t *GenerationTrigger) Close(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.cancel()
		return nil
	case <-ctx.Done():
		t.cancel()
		<-done
		return ctx.Err()
	}
}
