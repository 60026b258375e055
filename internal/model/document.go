package model

import (
	"io"
	"time"
)

// Document tracks one user file through upload and generation.
// This is a pure domain model with no storage-specific dependencies or tags.
type Document struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	SizeBytes     int64     `json:"size_bytes"`
	CreatedAt     time.Time `json:"created_at"`
	Status        Status    `json:"status"`
	FailureDetail string    `json:"failure_detail,omitempty"`
}

// DocumentRef identifies a document created by a batch upload.
type DocumentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FileCandidate is a file the user picked for upload. It is never persisted.
// Open is called lazily, only for candidates that pass the size cap.
type FileCandidate struct {
	Name        string
	SizeBytes   int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// UploadFailure reports one file that could not be submitted.
type UploadFailure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}
