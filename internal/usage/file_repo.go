package usage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileRepository persists the usage document as a single JSON object
// keyed by the decimal user ID. The document is rewritten in full on
// every save, via a temp file renamed over the target, so a failed or
// interrupted write leaves the previously stored state intact.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	// Touch file if not exists
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("touch file: %w", err)
	}
	_ = f.Close()
	return &FileRepository{path: path}, nil
}

func (r *FileRepository) Load() (map[int64]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer func(f *os.File) {
		err := f.Close()
		if err != nil {
		}
	}(f)
	records := make(map[int64]Record)
	dec := json.NewDecoder(f)
	if err := dec.Decode(&records); err != nil {
		if err == io.EOF {
			return make(map[int64]Record), nil
		}
		return nil, fmt.Errorf("decode usage document: %w", err)
	}
	return records, nil
}

func (r *FileRepository) Save(records map[int64]Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.CreateTemp(filepath.Dir(r.path), "usage-*.json")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return fmt.Errorf("encode usage document: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(f.Name(), 0o644); err != nil {
		_ = os.Remove(f.Name())
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(f.Name(), r.path); err != nil {
		_ = os.Remove(f.Name())
		return fmt.Errorf("replace usage document: %w", err)
	}
	return nil
}
