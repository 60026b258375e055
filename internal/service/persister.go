package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"docgen/internal/metrics"
	"docgen/internal/model"
	"docgen/internal/registry"
	"docgen/internal/repository"
)

// InterruptedDetail is recorded on documents that were in flight when the process stopped.
const InterruptedDetail = "interrupted by restart"

const saveTimeout = 10 * time.Second

// Persister is the only writer to the registry store. Change notifications are
// coalesced, so a burst of mutations results in one save of the latest snapshot.
type Persister struct {
	reg     *registry.Registry
	store   repository.RegistryStore
	metrics *metrics.Pipeline
	log     *zap.Logger

	kick      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewPersister(reg *registry.Registry, store repository.RegistryStore, m *metrics.Pipeline, log *zap.Logger) *Persister {
	if log == nil {
		log = zap.NewNop()
	}
	return &Persister{
		reg:     reg,
		store:   store,
		metrics: m,
		log:     log,
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Load restores the registry from the store. Documents left mid-pipeline by a
// previous run are marked failed, since their remote calls are gone.
func (p *Persister) Load(ctx context.Context) error {
	docs, err := p.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	fixed := 0
	for i := range docs {
		switch docs[i].Status {
		case model.StatusUploading:
			docs[i].Status = model.StatusUploadFailed
			docs[i].FailureDetail = InterruptedDetail
			fixed++
		case model.StatusGenerating:
			docs[i].Status = model.StatusFailed
			docs[i].FailureDetail = InterruptedDetail
			fixed++
		}
	}
	if err := p.reg.Restore(docs); err != nil {
		return fmt.Errorf("restore registry: %w", err)
	}
	p.log.Info("registry restored", zap.Int("documents", len(docs)), zap.Int("interrupted", fixed))
	if fixed > 0 {
		return p.store.Save(ctx, p.reg.Snapshot())
	}
	return nil
}

// Notify schedules a save. It never blocks.
func (p *Persister) Notify() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Start subscribes to the registry and runs the writer loop.
func (p *Persister) Start() {
	p.startOnce.Do(func() {
		p.reg.Subscribe(p.Notify)
		go p.loop()
	})
}

func (p *Persister) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.kick:
			p.flush()
		case <-p.stop:
			select {
			case <-p.kick:
			default:
			}
			p.flush()
			return
		}
	}
}

func (p *Persister) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := p.store.Save(ctx, p.reg.Snapshot()); err != nil {
		p.metrics.PersistFailed()
		p.log.Error("persist registry", zap.Error(err))
	}
}

// Close stops the loop after a final save of the current snapshot.
func (p *Persister) Close(ctx context.Context) error {
	p.startOnce.Do(func() { close(p.done) })
	p.stopOnce.Do(func() { close(p.stop) })
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
