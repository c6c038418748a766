package memory

import (
	"context"
	"path"
	"sync"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/ports"
	"golang-bank-reconciliation/pkg/errors"
)

// FileStore keeps retained originals in memory.
type FileStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewFileStore creates an empty file store.
func NewFileStore() *FileStore {
	return &FileStore{files: make(map[string][]byte)}
}

func (f *FileStore) Put(ctx context.Context, tenantID, sessionID, name string, data []byte) (*models.CSVSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ref := path.Join(tenantID, sessionID, path.Base(name))
	if existing, ok := f.files[ref]; ok {
		return &models.CSVSource{FileRef: ref, FileName: name, Size: int64(len(existing))}, nil
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	f.files[ref] = copied
	return &models.CSVSource{FileRef: ref, FileName: name, Size: int64(len(data))}, nil
}

func (f *FileStore) Get(ctx context.Context, ref string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, ok := f.files[ref]
	if !ok {
		return nil, errors.NotFoundError("file", ref)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

var _ ports.FileStore = (*FileStore)(nil)
