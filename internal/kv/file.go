package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gesturelock/internal/security"
)

// maxDocumentSize bounds the JSON document read from disk.
const maxDocumentSize = 4 << 20

// File is a Store persisted as a single JSON object of base64 values. Every
// operation re-reads the document under an advisory lock on path+".lock",
// so several processes can share it.
type File struct {
	path string
	mu   sync.Mutex
}

// OpenFile prepares a file-backed store at path, creating its directory.
func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("kv: file path is empty")
	}
	clean, err := security.CleanPath(path)
	if err != nil {
		return nil, fmt.Errorf("kv: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(clean), security.PermSecretDir); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &File{path: clean}, nil
}

// Path returns the document path.
func (f *File) Path() string { return f.path }

// withLock runs fn while holding both the in-process mutex and the
// cross-process file lock.
func (f *File) withLock(fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	lf, err := os.OpenFile(f.path+".lock", os.O_CREATE|os.O_RDWR, security.PermSecretFile)
	if err != nil {
		return err
	}
	defer lf.Close()

	if err := security.LockFile(lf); err != nil {
		return err
	}
	defer security.UnlockFile(lf)

	return fn()
}

func (f *File) load() (map[string][]byte, error) {
	data, err := security.ReadSecretFile(f.path, maxDocumentSize)
	if errors.Is(err, os.ErrNotExist) {
		return map[string][]byte{}, nil
	}
	if err != nil {
		return nil, err
	}
	doc := map[string][]byte{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return doc, nil
}

func (f *File) save(doc map[string][]byte) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return security.WriteSecretFile(f.path, data)
}

func (f *File) Get(key string) ([]byte, error) {
	var out []byte
	var found bool
	err := f.withLock(func() error {
		doc, err := f.load()
		if err != nil {
			return err
		}
		out, found = doc[key]
		return nil
	})
	if err != nil {
		return nil, failure("get", key, err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return out, nil
}

func (f *File) Set(key string, value []byte) error {
	err := f.withLock(func() error {
		doc, err := f.load()
		if err != nil {
			return err
		}
		if value == nil {
			value = []byte{}
		}
		doc[key] = value
		return f.save(doc)
	})
	if err != nil {
		return failure("set", key, err)
	}
	return nil
}

func (f *File) Remove(key string) error {
	err := f.withLock(func() error {
		doc, err := f.load()
		if err != nil {
			return err
		}
		if _, ok := doc[key]; !ok {
			return nil
		}
		delete(doc, key)
		return f.save(doc)
	})
	if err != nil {
		return failure("remove", key, err)
	}
	return nil
}
