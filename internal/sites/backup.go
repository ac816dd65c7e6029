package sites

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Backup persists the last known endpoint list as a JSON array.
type Backup struct {
	path string
}

func NewBackup(path string) *Backup {
	return &Backup{path: path}
}

// Load returns the saved list. A missing file yields ErrNoSites.
func (b *Backup) Load() ([]string, error) {
	if b == nil || b.path == "" {
		return nil, ErrNoSites
	}
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSites
	}
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}

	var urls []string
	if err := json.Unmarshal(raw, &urls); err != nil {
		return nil, fmt.Errorf("decode backup %s: %w", b.path, err)
	}
	return urls, nil
}

func (b *Backup) Save(urls []string) error {
	if b == nil || b.path == "" {
		return nil
	}
	raw, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".sites-*.json")
	if err != nil {
		return fmt.Errorf("create temp backup: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close backup: %w", err)
	}
	return os.Rename(tmp.Name(), b.path)
}
