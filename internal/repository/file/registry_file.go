package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"docgen/internal/model"
	"docgen/internal/repository"
)

// RegistryFile keeps the registry in a JSON file on local disk.
// Writes go to a temp file that is synced and renamed over the target.
type RegistryFile struct {
	mu   sync.Mutex
	path string
}

// NewRegistryFile returns a store writing to path. The directory is created on first save.
func NewRegistryFile(path string) (*RegistryFile, error) {
	if path == "" {
		return nil, errors.New("registry file path is required")
	}
	return &RegistryFile{path: path}, nil
}

var _ repository.RegistryStore = (*RegistryFile)(nil)

func (s *RegistryFile) Load(ctx context.Context) ([]model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.Document{}, nil
		}
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	return repository.DecodeDocuments(data)
}

func (s *RegistryFile) Save(ctx context.Context, docs []model.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := repository.EncodeDocuments(docs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".registry-*.json")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Ping reports whether the target directory is usable.
func (s *RegistryFile) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	st, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0o755)
		}
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
