package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/ytget/yt-offline/internal/model"
)

// Memory is an in-memory Store
type Memory struct {
	mu      sync.RWMutex
	records map[string]model.PlaylistRecord
	urls    []string
	closed  bool
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]model.PlaylistRecord),
	}
}

// LoadAll returns copies of every stored record
func (m *Memory) LoadAll(ctx context.Context) ([]model.PlaylistRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	records := make([]model.PlaylistRecord, 0, len(m.urls))
	for _, url := range m.urls {
		records = append(records, cloneRecord(m.records[url]))
	}
	return records, nil
}

// Save stores a copy of the record
func (m *Memory) Save(ctx context.Context, record model.PlaylistRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if _, exists := m.records[record.URL]; !exists {
		m.urls = append(m.urls, record.URL)
	}
	m.records[record.URL] = cloneRecord(record)
	return nil
}

// Delete removes the record for url, if any
func (m *Memory) Delete(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	delete(m.records, url)
	m.urls = slices.DeleteFunc(m.urls, func(u string) bool { return u == url })
	return nil
}

// Close marks the store closed
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func cloneRecord(r model.PlaylistRecord) model.PlaylistRecord {
	r.Order = maps.Clone(r.Order)
	r.Videos = slices.Clone(r.Videos)
	return r
}

var _ Store = (*Memory)(nil)
