package model

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ArtifactMimeType is the content type of every generated artifact.
const ArtifactMimeType = "application/pdf"

// Artifact is the generated output for one document, held while a view is active.
// The payload lives in a spooled temp file; Release closes and removes it.
type Artifact struct {
	DocumentID string
	MimeType   string
	Size       int64
	Checksum   string

	mu       sync.Mutex
	file     *os.File
	released bool
}

// NewArtifact wraps an already written spool file. Ownership of f moves to the Artifact.
func NewArtifact(documentID string, f *os.File, size int64, checksum string) *Artifact {
	return &Artifact{
		DocumentID: documentID,
		MimeType:   ArtifactMimeType,
		Size:       size,
		Checksum:   checksum,
		file:       f,
	}
}

// Reader returns a fresh reader over the payload.
func (a *Artifact) Reader() (io.Reader, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return nil, fmt.Errorf("artifact for %s already released", a.DocumentID)
	}
	return io.NewSectionReader(a.file, 0, a.Size), nil
}

// Bytes reads the whole payload into memory.
func (a *Artifact) Bytes() ([]byte, error) {
	r, err := a.Reader()
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// Release frees the spool file. Calling it more than once is a no-op.
func (a *Artifact) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return
	}
	a.released = true
	if a.file != nil {
		name := a.file.Name()
		_ = a.file.Close()
		_ = os.Remove(name)
		a.file = nil
	}
}

// Released reports whether Release has been called.
func (a *Artifact) Released() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}
