package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"docgen/internal/metrics"
	"docgen/internal/model"
	"docgen/internal/processing"
	"docgen/internal/storage"
)

// ErrViewClosed is returned by a view that was closed or superseded while fetching.
var ErrViewClosed = errors.New("artifact view closed")

// ArtifactCache fetches generated artifacts and spools them for display.
// When blobs is set, generated bytes are kept there and served before regenerating.
type ArtifactCache struct {
	client   processing.Client
	blobs    storage.Storage
	spoolDir string
	group    singleflight.Group
	metrics  *metrics.Pipeline
	log      *zap.Logger
}

// NewArtifactCache builds a cache. blobs and m may be nil.
func NewArtifactCache(client processing.Client, blobs storage.Storage, spoolDir string, m *metrics.Pipeline, log *zap.Logger) *ArtifactCache {
	if spoolDir == "" {
		spoolDir = os.TempDir()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ArtifactCache{client: client, blobs: blobs, spoolDir: spoolDir, metrics: m, log: log}
}

var _ ArtifactWarmer = (*ArtifactCache)(nil)

// BlobKey is the object key an artifact is cached under.
func BlobKey(documentID string) string {
	return "artifacts/" + url.PathEscape(documentID) + ".pdf"
}

// Fetch returns a new Artifact for documentID. The caller owns it and must Release it.
// Concurrent fetches of the same document share one remote call.
func (c *ArtifactCache) Fetch(ctx context.Context, documentID string) (*model.Artifact, error) {
	ch := c.group.DoChan(documentID, func() (any, error) {
		return c.load(context.WithoutCancel(ctx), documentID)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", processing.ErrServiceUnreachable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return c.spool(documentID, res.Val.([]byte))
	}
}

func (c *ArtifactCache) load(ctx context.Context, documentID string) ([]byte, error) {
	if data, ok := c.fromBlobs(ctx, documentID); ok {
		c.metrics.ArtifactFetch("cache", "hit")
		return data, nil
	}

	data, err := c.client.Generate(ctx, documentID)
	if err == nil && len(data) == 0 {
		err = processing.ErrEmptyArtifact
	}
	if err != nil {
		c.metrics.ArtifactFetch("service", "failed")
		return nil, err
	}
	c.metrics.ArtifactFetch("service", "success")
	c.Warm(ctx, documentID, data)
	return data, nil
}

func (c *ArtifactCache) fromBlobs(ctx context.Context, documentID string) ([]byte, bool) {
	if c.blobs == nil {
		return nil, false
	}
	rc, _, err := c.blobs.Get(ctx, BlobKey(documentID))
	if err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			c.metrics.ArtifactFetch("cache", "error")
			c.log.Warn("artifact cache read failed", zap.String("document_id", documentID), zap.Error(err))
		}
		return nil, false
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil || len(data) == 0 {
		c.log.Warn("artifact cache entry unusable", zap.String("document_id", documentID), zap.Error(err))
		return nil, false
	}
	return data, true
}

func (c *ArtifactCache) spool(documentID string, data []byte) (*model.Artifact, error) {
	f, err := os.CreateTemp(c.spoolDir, "artifact-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("write spool file: %w", err)
	}
	sum := sha256.Sum256(data)
	return model.NewArtifact(documentID, f, int64(len(data)), hex.EncodeToString(sum[:])), nil
}

// Warm stores data in the blob cache. Failures are logged and otherwise ignored.
func (c *ArtifactCache) Warm(ctx context.Context, documentID string, data []byte) {
	if c.blobs == nil || len(data) == 0 {
		return
	}
	_, err := c.blobs.Put(ctx, BlobKey(documentID), bytes.NewReader(data), storage.PutObjectOptions{
		Size:        int64(len(data)),
		ContentType: model.ArtifactMimeType,
		Metadata:    map[string]string{"document-id": documentID},
	})
	if err != nil {
		c.log.Warn("artifact cache write failed", zap.String("document_id", documentID), zap.Error(err))
	}
}

// Evict drops the cached blob for documentID, best-effort.
func (c *ArtifactCache) Evict(ctx context.Context, documentID string) {
	if c.blobs == nil {
		return
	}
	if err := c.blobs.Delete(ctx, BlobKey(documentID)); err != nil {
		c.log.Warn("artifact cache evict failed", zap.String("document_id", documentID), zap.Error(err))
	}
}

// Ping checks the blob cache when one is configured.
func (c *ArtifactCache) Ping(ctx context.Context) error {
	if c.blobs == nil {
		return nil
	}
	return c.blobs.Ping(ctx)
}

// NewView returns a view backed by this cache.
func (c *ArtifactCache) NewView() *ArtifactView {
	return NewArtifactView(c.Fetch)
}

// FetchFunc loads one artifact; the result is owned by the caller.
type FetchFunc func(ctx context.Context, documentID string) (*model.Artifact, error)

// ArtifactView holds at most one live artifact. Showing another document releases
// the previous one, and Close releases whatever is held.
type ArtifactView struct {
	fetch FetchFunc

	mu      sync.Mutex
	current *model.Artifact
	seq     uint64
	closed  bool
}

func NewArtifactView(fetch FetchFunc) *ArtifactView {
	return &ArtifactView{fetch: fetch}
}

// Show fetches documentID and makes it the view's current artifact.
// A fetch that completes after Close, or after a newer Show, is released at once.
func (v *ArtifactView) Show(ctx context.Context, documentID string) (*model.Artifact, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, ErrViewClosed
	}
	v.seq++
	seq := v.seq
	v.mu.Unlock()

	a, err := v.fetch(ctx, documentID)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || seq != v.seq {
		if a != nil {
			a.Release()
		}
		return nil, ErrViewClosed
	}
	if err != nil {
		return nil, err
	}
	prev := v.current
	v.current = a
	if prev != nil {
		prev.Release()
	}
	return a, nil
}

// Current returns the artifact on display, or nil.
func (v *ArtifactView) Current() *model.Artifact {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Close releases the current artifact. It is safe to call more than once.
func (v *ArtifactView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	if v.current != nil {
		v.current.Release()
		v.current = nil
	}
}
