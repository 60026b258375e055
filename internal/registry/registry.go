// Package registry holds the in-memory source of truth for document records.
// It performs no I/O; persistence subscribes to changes from the outside.
package registry

import (
	"fmt"
	"sync"

	"docgen/internal/model"
)

// Registry is safe for concurrent use. Records keep insertion order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	docs  map[string]*model.Document

	subMu sync.RWMutex
	subs  []func()
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{docs: make(map[string]*model.Document)}
}

// Subscribe registers fn to be called after every successful mutation.
// fn runs outside the registry lock and must not block.
func (r *Registry) Subscribe(fn func()) {
	r.subMu.Lock()
	r.subs = append(r.subs, fn)
	r.subMu.Unlock()
}

func (r *Registry) notify() {
	r.subMu.RLock()
	subs := r.subs
	r.subMu.RUnlock()
	for _, fn := range subs {
		fn()
	}
}

// Insert adds a new document. IDs must be unique.
func (r *Registry) Insert(doc model.Document) error {
	if doc.ID == "" {
		return ErrIDRequired
	}
	if !doc.Status.Valid() {
		return fmt.Errorf("insert %s: %w", doc.ID, ErrInvalidTransition)
	}
	r.mu.Lock()
	if _, ok := r.docs[doc.ID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("insert %s: %w", doc.ID, ErrDuplicateID)
	}
	if !doc.Status.IsFailure() {
		doc.FailureDetail = ""
	}
	d := doc
	r.docs[doc.ID] = &d
	r.order = append(r.order, doc.ID)
	r.mu.Unlock()

	r.notify()
	return nil
}

// UpdateStatus applies an automatic pipeline transition. An absent id is a no-op,
// which covers late writes for documents deleted mid-flight.
func (r *Registry) UpdateStatus(id string, to model.Status, detail string) error {
	r.mu.Lock()
	d, ok := r.docs[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	if !allowed(d.Status, to) {
		from := d.Status
		r.mu.Unlock()
		return fmt.Errorf("%s: %s -> %s: %w", id, from, to, ErrInvalidTransition)
	}
	d.Status = to
	if to.IsFailure() {
		d.FailureDetail = detail
	} else {
		d.FailureDetail = ""
	}
	r.mu.Unlock()

	r.notify()
	return nil
}

// Retry moves a failed document back to Generating for an explicit user retry.
func (r *Registry) Retry(id string) error {
	r.mu.Lock()
	d, ok := r.docs[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if !d.Status.IsFailure() {
		from := d.Status
		r.mu.Unlock()
		return fmt.Errorf("%s: retry from %s: %w", id, from, ErrInvalidTransition)
	}
	d.Status = model.StatusGenerating
	d.FailureDetail = ""
	r.mu.Unlock()

	r.notify()
	return nil
}

// Delete removes a document unless its generation is in flight.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	d, ok := r.docs[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if d.Status == model.StatusGenerating {
		r.mu.Unlock()
		return ErrGenerationInFlight
	}
	delete(r.docs, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.notify()
	return nil
}

// Get returns a copy of one document.
func (r *Registry) Get(id string) (model.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[id]
	if !ok {
		return model.Document{}, false
	}
	return *d, true
}

// Snapshot returns a copy of all documents in insertion order.
func (r *Registry) Snapshot() []model.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Document, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.docs[id])
	}
	return out
}

// Len returns the number of registered documents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Restore replaces the registry contents with docs, typically loaded at startup.
// Subscribers are not notified; the contents already match the store.
func (r *Registry) Restore(docs []model.Document) error {
	next := make(map[string]*model.Document, len(docs))
	order := make([]string, 0, len(docs))
	for i := range docs {
		d := docs[i]
		if d.ID == "" {
			return ErrIDRequired
		}
		if !d.Status.Valid() {
			return fmt.Errorf("restore %s: %w", d.ID, ErrInvalidTransition)
		}
		if _, ok := next[d.ID]; ok {
			return fmt.Errorf("restore %s: %w", d.ID, ErrDuplicateID)
		}
		next[d.ID] = &d
		order = append(order, d.ID)
	}

	r.mu.Lock()
	r.docs = next
	r.order = order
	r.mu.Unlock()
	return nil
}

func allowed(from, to model.Status) bool {
	switch from {
	case model.StatusUploading:
		return to == model.StatusGenerating || to == model.StatusUploadFailed
	case model.StatusGenerating:
		return to == model.StatusSuccess || to == model.StatusFailed
	default:
		return false
	}
}
