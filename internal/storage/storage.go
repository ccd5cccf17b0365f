// Package storage provides the key-value persistence surface used for
// cross-session client settings.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// KV is a string key-value store
type KV interface {
	// Get returns the value and whether the key exists
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	Close() error
}

// Backend names accepted by Open
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open creates the KV store for the named backend inside dir
func Open(backend, dir string) (KV, error) {
	switch backend {
	case "", BackendFile:
		return NewFileKV(filepath.Join(dir, "settings.json"))
	case BackendSQLite:
		return NewSQLiteKV(filepath.Join(dir, "settings.db"))
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", backend)
	}
}

// FileKV keeps all keys in a single JSON object on disk
type FileKV struct {
	path string
	mu   sync.RWMutex
}

// NewFileKV creates a file-backed store. The file is created on first write.
func NewFileKV(path string) (*FileKV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileKV{path: path}, nil
}

// Path returns the backing file path
func (f *FileKV) Path() string {
	return f.path
}

// Get returns the value stored under key
func (f *FileKV) Get(key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := entries[key]
	return v, ok, nil
}

// Set stores value under key
func (f *FileKV) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.load()
	if err != nil {
		// A corrupt file is replaced rather than blocking every future write
		entries = map[string]string{}
	}
	entries[key] = value
	return f.save(entries)
}

// Delete removes key
func (f *FileKV) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return f.save(entries)
}

// Close is a no-op for file storage
func (f *FileKV) Close() error {
	return nil
}

func (f *FileKV) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}

	entries := map[string]string{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse storage file: %w", err)
	}
	return entries, nil
}

func (f *FileKV) save(entries map[string]string) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write storage file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace storage file: %w", err)
	}
	return nil
}
