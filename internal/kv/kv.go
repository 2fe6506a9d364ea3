// Package kv defines the key-value collaborator used to persist the stored
// pattern, lockout metadata and preferences, and ships memory, SQLite and
// file backends for it.
package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gesturelock/internal/config"
)

var (
	// ErrNotFound is returned by Get for an absent key.
	ErrNotFound = errors.New("kv: key not found")

	// ErrStorageFailure wraps every backend fault.
	ErrStorageFailure = errors.New("kv: storage failure")
)

// Store is a synchronous key-value store.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Remove(key string) error
}

// failure wraps err so that errors.Is(err, ErrStorageFailure) holds while
// keeping the cause.
func failure(op, key string, err error) error {
	return fmt.Errorf("%w: %s %q: %w", ErrStorageFailure, op, key, err)
}

// GetJSON decodes the value stored under key into v. A value that does not
// decode is reported as a storage failure.
func GetJSON(s Store, key string, v any) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return failure("decode", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %q: %w", key, err)
	}
	return s.Set(key, data)
}

// Open selects a backend from the [storage] config section. The returned
// store should be closed with Close.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		s, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "file":
		f, err := OpenFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("kv: unknown storage type %q", cfg.Type)
	}
}

// Close closes s if it holds resources.
func Close(s Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
