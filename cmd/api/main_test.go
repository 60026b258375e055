package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"docgen/internal/config"
)

type closerFunc func(ctx context.Context) error

func (f closerFunc) Close(ctx context.Context) error { return f(ctx) }

func TestDrain_FlushSurvivesSlowTrigger(t *testing.T) {
	var order []string
	trigger := closerFunc(func(ctx context.Context) error {
		order = append(order, "trigger")
		<-ctx.Done()
		return ctx.Err()
	})
	var flushErr error
	persister := closerFunc(func(ctx context.Context) error {
		order = append(order, "persister")
		flushErr = ctx.Err()
		return nil
	})

	drain(zap.NewNop(), 10*time.Millisecond, time.Second, trigger, persister)

	assert.Equal(t, []string{"trigger", "persister"}, order)
	assert.NoError(t, flushErr)
}

func TestBodyLimit(t *testing.T) {
	tests := []struct {
		name string
		p    config.PipelineConfig
		want int
	}{
		{name: "defaults", p: config.PipelineConfig{MaxFileSizeBytes: 5 << 20, MaxBatchSize: 5}, want: 100 << 20},
		{name: "small caps keep the floor", p: config.PipelineConfig{MaxFileSizeBytes: 1024, MaxBatchSize: 1}, want: 4 << 20},
		{name: "zero batch treated as one", p: config.PipelineConfig{MaxFileSizeBytes: 2 << 20, MaxBatchSize: 0}, want: 8 << 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bodyLimit(tt.p))
		})
	}
}
