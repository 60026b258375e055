package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"docgen/internal/model"
)

// DefaultKey is the logical key the registry is saved under.
const DefaultKey = "documents"

// displayDateLayout is the layout of the persisted "date" display string.
const displayDateLayout = "Jan 2, 2006 15:04"

// RegistryStore persists the document registry under one logical key.
// Artifact bytes are never stored here.
type RegistryStore interface {
	// Load returns the saved documents in their saved order. A missing key yields an empty slice.
	Load(ctx context.Context) ([]model.Document, error)

	// Save replaces the saved documents.
	Save(ctx context.Context, docs []model.Document) error

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error
}

// Record is the persisted layout of one document.
// Size and Date are display strings; SizeBytes and CreatedAt keep the exact values.
type Record struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Size      string       `json:"size"`
	Date      string       `json:"date"`
	Status    model.Status `json:"status"`
	Detail    string       `json:"detail,omitempty"`
	SizeBytes int64        `json:"size_bytes"`
	CreatedAt time.Time    `json:"created_at"`
}

// EncodeDocuments serializes docs as an ordered JSON array of records.
func EncodeDocuments(docs []model.Document) ([]byte, error) {
	recs := make([]Record, 0, len(docs))
	for _, d := range docs {
		recs = append(recs, Record{
			ID:        d.ID,
			Name:      d.Name,
			Size:      humanize.Bytes(uint64(max(d.SizeBytes, 0))),
			Date:      d.CreatedAt.Format(displayDateLayout),
			Status:    d.Status,
			Detail:    d.FailureDetail,
			SizeBytes: d.SizeBytes,
			CreatedAt: d.CreatedAt.UTC(),
		})
	}
	return json.Marshal(recs)
}

// DecodeDocuments parses what EncodeDocuments produced. Records written without the
// exact fields fall back to parsing the display strings.
func DecodeDocuments(data []byte) ([]model.Document, error) {
	if len(data) == 0 {
		return []model.Document{}, nil
	}
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	docs := make([]model.Document, 0, len(recs))
	for _, r := range recs {
		d := model.Document{
			ID:            r.ID,
			Name:          r.Name,
			SizeBytes:     r.SizeBytes,
			CreatedAt:     r.CreatedAt,
			Status:        r.Status,
			FailureDetail: r.Detail,
		}
		if d.SizeBytes == 0 && r.Size != "" {
			if n, err := humanize.ParseBytes(r.Size); err == nil {
				d.SizeBytes = int64(n)
			}
		}
		if d.CreatedAt.IsZero() && r.Date != "" {
			if ts, err := time.Parse(displayDateLayout, r.Date); err == nil {
				d.CreatedAt = ts
			}
		}
		docs = append(docs, d)
	}
	return docs, nil
}
