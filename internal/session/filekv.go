package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// FileKV stores keys as top-level string entries of a TOML file. Every
// write replaces the whole file through a rename, so a batch lands
// entirely or not at all.
type FileKV struct {
	mu   sync.Mutex
	path string
}

// NewFileKV returns a FileKV backed by path. The file and its directory are
// created on first write.
func NewFileKV(path string) *FileKV {
	return &FileKV{path: path}
}

func (f *FileKV) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (f *FileKV) SetAll(values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.load()
	if errors.Is(err, ErrCorrupt) {
		current = make(map[string]string)
	} else if err != nil {
		return err
	}
	for k, v := range values {
		current[k] = v
	}
	return f.store(current)
}

func (f *FileKV) DeleteAll(keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.load()
	if errors.Is(err, ErrCorrupt) {
		current = make(map[string]string)
	} else if err != nil {
		return err
	}
	for _, k := range keys {
		delete(current, k)
	}
	return f.store(current)
}

// load reads the file. A missing file is an empty store; a file that does
// not parse is reported so callers can decide to discard it.
func (f *FileKV) load() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}

	if err := toml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	return values, nil
}

func (f *FileKV) store(values map[string]string) error {
	data, err := toml.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshaling error: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(f.path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*.toml")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name()) // no-op once renamed
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}
