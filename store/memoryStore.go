package store

import (
	"github.com/ztrue/tracerr"
	"sync"
)

// MemoryStore is a Store keeping entries in memory only. Entries are copied
// on the way in and out, so callers cannot mutate what is stored. Closing
// drops everything.
type MemoryStore struct {
	mutex   sync.Mutex
	entries map[string][]byte
}

func (m *MemoryStore) Open() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.entries != nil {
		return tracerr.Wrap(ErrorStoreAlreadyOpen)
	}
	m.entries = make(map[string][]byte)
	return nil
}

func (m *MemoryStore) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.entries == nil {
		return tracerr.Wrap(ErrorStoreClosed)
	}
	m.entries = nil
	return nil
}

func (m *MemoryStore) Put(name string, data []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.entries == nil {
		return tracerr.Wrap(ErrorStoreClosed)
	}
	m.entries[name] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Get(name string) ([]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.entries == nil {
		return nil, tracerr.Wrap(ErrorStoreClosed)
	}
	data, found := m.entries[name]
	if !found {
		return nil, tracerr.Wrap(ErrorStoreEntryNotFound.AddDetails(name))
	}
	return append([]byte(nil), data...), nil
}
