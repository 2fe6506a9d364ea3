package kv

import (
	"errors"
	"sync"
)

// errInjected is the cause reported while a Memory store is failing.
var errInjected = errors.New("injected fault")

// Memory is an in-process Store. Setting Fail makes every operation return
// ErrStorageFailure, which lets tests exercise storage fault paths.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
	fail bool
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Fail toggles fault injection.
func (m *Memory) Fail(on bool) {
	m.mu.Lock()
	m.fail = on
	m.mu.Unlock()
}

func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return nil, failure("get", key, errInjected)
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return failure("set", key, errInjected)
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return failure("remove", key, errInjected)
	}
	delete(m.data, key)
	return nil
}

// Keys returns the number of stored keys.
func (m *Memory) Keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
