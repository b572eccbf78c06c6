package store

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/jsonc"
)

// FileBackend keeps one pretty-printed <name>.json file per document under a
// directory. Versions are tracked in memory, so only one process may own the
// directory. Files may contain comments and trailing commas.
type FileBackend struct {
	dir string

	mu       sync.Mutex
	versions map[string]int64
}

// NewFileBackend creates dir if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileBackend{dir: dir, versions: make(map[string]int64)}, nil
}

func (f *FileBackend) path(name string) string {
	return filepath.Join(f.dir, name+".json")
}

// Load reads the document file. A missing or blank file is an absent document.
func (f *FileBackend) Load(_ context.Context, name string) ([]byte, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, f.versions[name], nil
		}
		return nil, 0, err
	}
	data = bytes.TrimSpace(jsonc.ToJSON(data))
	if len(data) == 0 {
		return nil, f.versions[name], nil
	}
	return data, f.versions[name], nil
}

// Swap replaces the file via a temp file and rename.
func (f *FileBackend) Swap(_ context.Context, name string, data []byte, expect int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.versions[name] != expect {
		return 0, ErrConflict
	}
	if err := writeAtomic(f.path(name), data); err != nil {
		return 0, err
	}
	f.versions[name] = expect + 1
	return expect + 1, nil
}

// Ping checks the directory is still there.
func (f *FileBackend) Ping(context.Context) error {
	st, err := os.Stat(f.dir)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", f.dir)
	}
	return nil
}

// Close is a no-op.
func (f *FileBackend) Close() error { return nil }

func writeAtomic(fileName string, data []byte) error {
	tmpFile := fileName + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return err
	}
	if _, err = file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}
	if err = file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}
	if err = file.Close(); err != nil {
		os.Remove(tmpFile)
		return err
	}
	return os.Rename(tmpFile, fileName)
}
