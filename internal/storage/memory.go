package storage

import (
	"context"
	"io"
	"maps"
	"strings"
	"sync"
	"time"
)

// MemoryStorage keeps objects in memory. Used by tests and by blogctl --dry-run.
type MemoryStorage struct {
	mu      sync.Mutex
	baseURL string
	objects map[string]memoryObject
	puts    int
}

type memoryObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{baseURL: strings.TrimRight(baseURL, "/"), objects: map[string]memoryObject{}}
}

func (m *MemoryStorage) PutObject(ctx context.Context, objectKey, contentType string, body io.Reader, size int64, metadata map[string]string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectKey] = memoryObject{data: data, contentType: contentType, metadata: maps.Clone(metadata), modified: time.Now()}
	m.puts++
	return nil
}

func (m *MemoryStorage) ObjectMetadata(ctx context.Context, objectKey string) (*ObjectMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[objectKey]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return &ObjectMetadata{
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		LastModified: obj.modified,
		Metadata:     maps.Clone(obj.metadata),
	}, nil
}

func (m *MemoryStorage) PublicURL(objectKey string) string {
	return m.baseURL + "/" + objectKey
}

func (m *MemoryStorage) GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	return m.PublicURL(objectKey) + "?expires=" + expires.String(), nil
}

func (m *MemoryStorage) DeleteObject(ctx context.Context, objectKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objectKey)
	return nil
}

// Puts counts PutObject calls.
func (m *MemoryStorage) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// Object returns the stored bytes, for assertions.
func (m *MemoryStorage) Object(objectKey string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[objectKey]
	return obj.data, ok
}
