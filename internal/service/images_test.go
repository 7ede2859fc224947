package service

import (
	"context"
	"fmt"
	"sync"
)

// memoryImages is an in-memory ImageStore for coordinator tests
type memoryImages struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemoryImages() *memoryImages {
	return &memoryImages{files: make(map[string][]byte)}
}

func (m *memoryImages) Save(_ context.Context, identityID int64, image []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref := fmt.Sprintf("mem://user_%d/face.jpg", identityID)
	m.files[ref] = append([]byte(nil), image...)
	return ref, nil
}

func (m *memoryImages) Remove(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files, ref)
	return nil
}

func (m *memoryImages) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}
