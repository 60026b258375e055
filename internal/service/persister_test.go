package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docgen/internal/metrics"
	"docgen/internal/model"
	"docgen/internal/registry"
	"docgen/internal/repository/file"
	repoMocks "docgen/internal/repository/mocks"
)

func TestPersister_Load(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name       string
		setupMocks func(mStore *repoMocks.MockRegistryStore)
		wantErr    bool
		check      func(t *testing.T, reg *registry.Registry)
	}{
		{
			name: "clean state restored without save",
			setupMocks: func(mStore *repoMocks.MockRegistryStore) {
				mStore.On("Load", ctx).Return([]model.Document{
					{ID: "a", Name: "a.pdf", Status: model.StatusSuccess, CreatedAt: created},
					{ID: "b", Name: "b.pdf", Status: model.StatusFailed, FailureDetail: "rate limited", CreatedAt: created},
				}, nil)
			},
			check: func(t *testing.T, reg *registry.Registry) {
				assert.Equal(t, 2, reg.Len())
				b, _ := reg.Get("b")
				assert.Equal(t, "rate limited", b.FailureDetail)
			},
		},
		{
			name: "interrupted documents are failed and saved",
			setupMocks: func(mStore *repoMocks.MockRegistryStore) {
				mStore.On("Load", ctx).Return([]model.Document{
					{ID: "u", Name: "u.pdf", Status: model.StatusUploading},
					{ID: "g", Name: "g.pdf", Status: model.StatusGenerating},
					{ID: "s", Name: "s.pdf", Status: model.StatusSuccess},
				}, nil)
				mStore.On("Save", ctx, mock.MatchedBy(func(docs []model.Document) bool {
					return len(docs) == 3 &&
						docs[0].Status == model.StatusUploadFailed &&
						docs[1].Status == model.StatusFailed &&
						docs[2].Status == model.StatusSuccess
				})).Return(nil)
			},
			check: func(t *testing.T, reg *registry.Registry) {
				u, _ := reg.Get("u")
				g, _ := reg.Get("g")
				assert.Equal(t, InterruptedDetail, u.FailureDetail)
				assert.Equal(t, InterruptedDetail, g.FailureDetail)
			},
		},
		{
			name: "store error",
			setupMocks: func(mStore *repoMocks.MockRegistryStore) {
				mStore.On("Load", ctx).Return(nil, errors.New("redis down"))
			},
			wantErr: true,
		},
		{
			name: "corrupt state with duplicate ids",
			setupMocks: func(mStore *repoMocks.MockRegistryStore) {
				mStore.On("Load", ctx).Return([]model.Document{
					{ID: "a", Status: model.StatusSuccess},
					{ID: "a", Status: model.StatusSuccess},
				}, nil)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := registry.New()
			mStore := new(repoMocks.MockRegistryStore)
			tt.setupMocks(mStore)

			err := NewPersister(reg, mStore, nil, nil).Load(ctx)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				tt.check(t, reg)
			}
			mStore.AssertExpectations(t)
		})
	}
}

// countingStore records every saved snapshot.
type countingStore struct {
	mu    sync.Mutex
	saves [][]model.Document
	err   error
}

func (s *countingStore) Load(context.Context) ([]model.Document, error) { return nil, nil }
func (s *countingStore) Ping(context.Context) error                     { return nil }
func (s *countingStore) Save(_ context.Context, docs []model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, docs)
	return s.err
}

func (s *countingStore) last() []model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return nil
	}
	return s.saves[len(s.saves)-1]
}

func TestPersister_SavesLatestSnapshot(t *testing.T) {
	reg := registry.New()
	store := &countingStore{}
	p := NewPersister(reg, store, nil, nil)
	p.Start()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, reg.Insert(model.Document{ID: id, Status: model.StatusUploading}))
	}
	require.NoError(t, reg.UpdateStatus("b", model.StatusGenerating, ""))

	require.NoError(t, p.Close(context.Background()))

	last := store.last()
	require.Len(t, last, 3)
	assert.Equal(t, model.StatusGenerating, last[1].Status)
	store.mu.Lock()
	assert.LessOrEqual(t, len(store.saves), 5)
	store.mu.Unlock()
}

func TestPersister_SaveFailureCounted(t *testing.T) {
	promReg := prometheus.NewRegistry()
	m, err := metrics.NewPipeline(promReg)
	require.NoError(t, err)

	reg := registry.New()
	p := NewPersister(reg, &countingStore{err: errors.New("disk full")}, m, nil)
	p.Start()
	require.NoError(t, reg.Insert(model.Document{ID: "a", Status: model.StatusUploading}))
	require.NoError(t, p.Close(context.Background()))

	families, err := promReg.Gather()
	require.NoError(t, err)
	var failures float64
	for _, mf := range families {
		if mf.GetName() == "docgen_registry_persist_failures_total" {
			failures = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.GreaterOrEqual(t, failures, 1.0)
}

func TestPersister_CloseWithoutStart(t *testing.T) {
	p := NewPersister(registry.New(), &countingStore{}, nil, nil)
	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))
}

func TestPersister_RoundTripThroughFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	created := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

	reg := registry.New()
	store, err := file.NewRegistryFile(path)
	require.NoError(t, err)
	p := NewPersister(reg, store, nil, nil)
	p.Start()
	require.NoError(t, reg.Insert(model.Document{ID: "a", Name: "plan.pdf", SizeBytes: 2_500_000, CreatedAt: created, Status: model.StatusUploading}))
	require.NoError(t, reg.UpdateStatus("a", model.StatusGenerating, ""))
	require.NoError(t, p.Close(context.Background()))

	restored := registry.New()
	require.NoError(t, NewPersister(restored, store, nil, nil).Load(context.Background()))
	doc, ok := restored.Get("a")
	require.True(t, ok)
	assert.Equal(t, "plan.pdf", doc.Name)
	assert.Equal(t, int64(2_500_000), doc.SizeBytes)
	assert.True(t, created.Equal(doc.CreatedAt))
	assert.Equal(t, model.StatusFailed, doc.Status)
	assert.Equal(t, InterruptedDetail, doc.FailureDetail)
}
