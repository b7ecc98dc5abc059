package store

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Store is a durable key/value store. Values are JSON encoded.
type Store interface {
	// Get decodes the value stored under key into v.
	// It reports false when the key is absent.
	Get(key string, v any) (bool, error)
	Set(key string, v any) error
	Close() error
}

// Open returns the store for driver ("file" or "sqlite") at path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "file", "json", "":
		return NewFile(path)
	case "sqlite":
		return NewSQLite(path)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// Memory keeps values in process; nothing survives a restart.
type Memory struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]json.RawMessage)}
}

func (m *Memory) Get(key string, v any) (bool, error) {
	m.mu.Lock()
	raw, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (m *Memory) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
