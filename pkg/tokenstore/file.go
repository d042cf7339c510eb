package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DefaultPath returns the default credentials file location,
// e.g. ~/.config/startupvista/credentials.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "startupvista", "credentials.json"), nil
}

// FileStore persists credentials as a mode-0600 JSON file. It is the Go
// analog of the web client's localStorage slot.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed store at path, creating parent
// directories as needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("credentials path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credentials dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file location.
func (f *FileStore) Path() string {
	return f.path
}

// Get reads the stored credentials. Any read or decode failure is treated
// as absent credentials; Get never fails.
func (f *FileStore) Get() Credentials {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

func (f *FileStore) read() Credentials {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return Credentials{}
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return Credentials{}
	}
	return c
}

// Set writes both tokens atomically via a temp-file rename.
func (f *FileStore) Set(c Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to persist credentials: %w", err)
	}
	return nil
}

// Clear removes the credentials file. Clearing an absent file is a no-op.
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}

// Watch invokes fn with the current credentials whenever the backing file
// changes, including changes made by another process (a login or logout in
// a different terminal). It returns a stop function that releases the
// watcher; the watch also ends when ctx is done.
func (f *FileStore) Watch(ctx context.Context, fn func(Credentials)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the parent directory: the file itself may not exist yet, and
	// atomic renames replace the inode.
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch credentials dir: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(f.path) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				fn(f.Get())
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }
	return stop, nil
}
