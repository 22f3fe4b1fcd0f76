package session

import (
	"context"
	"sync"

	"github.com/and161185/nftmarket/internal/model"
)

// MemoryPersister keeps records in process memory.
type MemoryPersister struct {
	mu   sync.Mutex
	recs map[string]model.Session
}

// NewMemoryPersister constructs an empty persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{recs: map[string]model.Session{}}
}

func (m *MemoryPersister) Load(_ context.Context, name string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.recs[name]
	if !ok {
		return model.Session{}, ErrNoRecord
	}
	return copySession(s), nil
}

func (m *MemoryPersister) Save(_ context.Context, name string, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[name] = copySession(s)
	return nil
}

func (m *MemoryPersister) Clear(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, name)
	return nil
}
