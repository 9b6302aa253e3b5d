package objectstore

import (
	"bytes"
	"context"
	"sync"

	"github.com/Lllllllleong/documentrestoreflow/internal/models"
)

// MemoryGateway keeps objects in process memory. Used by tests and the
// offline CLI.
type MemoryGateway struct {
	container string

	mu      sync.RWMutex
	objects map[models.ObjectRef][]byte
	types   map[models.ObjectRef]string
}

func NewMemoryGateway(container string) *MemoryGateway {
	return &MemoryGateway{
		container: container,
		objects:   make(map[models.ObjectRef][]byte),
		types:     make(map[models.ObjectRef]string),
	}
}

func (m *MemoryGateway) Container() string { return m.container }

func (m *MemoryGateway) Put(ctx context.Context, key string, data []byte, contentType string) (models.ObjectRef, error) {
	if err := ctx.Err(); err != nil {
		return models.ObjectRef{}, err
	}
	ref := models.ObjectRef{Container: m.container, Key: key}
	m.mu.Lock()
	m.objects[ref] = bytes.Clone(data)
	m.types[ref] = contentType
	m.mu.Unlock()
	return ref, nil
}

func (m *MemoryGateway) Get(ctx context.Context, ref models.ObjectRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[ref]
	if !ok {
		return nil, models.ErrObjectNotFound
	}
	return bytes.Clone(data), nil
}

// ContentType returns the content type recorded for ref.
func (m *MemoryGateway) ContentType(ref models.ObjectRef) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.types[ref]
}

// Keys lists every stored reference.
func (m *MemoryGateway) Keys() []models.ObjectRef {
	m.mu.RLock()
	defer m.mu.RUnlock()
	refs := make([]models.ObjectRef, 0, len(m.objects))
	for ref := range m.objects {
		refs = append(refs, ref)
	}
	return refs
}
