package proxypool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// HealthRecord exists only for proxies that passed their most recent probe.
type HealthRecord struct {
	Key         string    `json:"-"`
	LastChecked time.Time `json:"last_checked"`
	Scheme      string    `json:"schema"`
	User        string    `json:"user,omitempty"`
	Password    string    `json:"password,omitempty"`
	ProxyURL    string    `json:"proxy_url"`
}

func newHealthRecord(p Proxy, checkedAt time.Time) HealthRecord {
	return HealthRecord{
		Key:         p.Key(),
		LastChecked: checkedAt,
		Scheme:      p.Scheme,
		User:        p.User,
		Password:    p.Password,
		ProxyURL:    p.URL(),
	}
}

// StateStore persists the health record table keyed by host:port.
type StateStore interface {
	Load(ctx context.Context) (map[string]HealthRecord, error)
	Save(ctx context.Context, records map[string]HealthRecord) error
}

// FileStore keeps the record table in a JSON file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns an empty table when the file does not exist yet.
func (fs *FileStore) Load(_ context.Context) (map[string]HealthRecord, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]HealthRecord{}, nil
		}
		return nil, fmt.Errorf("read proxy state: %w", err)
	}
	if len(data) == 0 {
		return map[string]HealthRecord{}, nil
	}

	records := make(map[string]HealthRecord)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode proxy state %s: %w", fs.path, err)
	}
	for key, rec := range records {
		rec.Key = key
		records[key] = rec
	}
	return records, nil
}

// Save writes to a temp file and renames it over the target so readers never
// observe a partial table.
func (fs *FileStore) Save(_ context.Context, records map[string]HealthRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode proxy state: %w", err)
	}

	dir := filepath.Dir(fs.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(fs.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write proxy state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close proxy state: %w", err)
	}
	if err := os.Rename(tmpName, fs.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace proxy state: %w", err)
	}
	return nil
}
