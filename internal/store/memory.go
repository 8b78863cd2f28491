package store

import (
	"context"
	"sort"
	"sync"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
)

// MemoryBackend keeps everything in process. Data does not survive a restart.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]map[string]Record
	tasks   map[string][]schemas.TaskRecord
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[string]map[string]Record),
		tasks:   make(map[string][]schemas.TaskRecord),
	}
}

func (m *MemoryBackend) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.records[rec.SessionID]
	if !ok {
		session = make(map[string]Record)
		m.records[rec.SessionID] = session
	}
	session[rec.Key] = rec
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, sessionID, key string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[sessionID][key]
	return rec, ok, nil
}

func (m *MemoryBackend) List(_ context.Context, sessionID string) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, len(m.records[sessionID]))
	for _, rec := range m.records[sessionID] {
		out = append(out, rec)
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *MemoryBackend) Delete(_ context.Context, sessionID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[sessionID][key]; !ok {
		return ErrNotFound
	}
	delete(m.records[sessionID], key)
	return nil
}

func (m *MemoryBackend) AppendTask(_ context.Context, rec schemas.TaskRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[rec.SessionID] = append(m.tasks[rec.SessionID], rec)
	return nil
}

func (m *MemoryBackend) Tasks(_ context.Context, sessionID string, limit int) ([]schemas.TaskRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.tasks[sessionID]
	out := make([]schemas.TaskRecord, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *MemoryBackend) Close() error { return nil }
