package proxypool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// CandidateSource supplies the raw proxy specs the pool may use.
type CandidateSource interface {
	Candidates(ctx context.Context) ([]Spec, error)
}

// FileCandidates reads a JSON array of proxy specs.
type FileCandidates struct {
	path   string
	logger *slog.Logger
}

func NewFileCandidates(path string, logger *slog.Logger) *FileCandidates {
	return &FileCandidates{path: path, logger: logger}
}

// Candidates skips entries that are not valid JSON specs instead of failing
// the whole list.
func (fc *FileCandidates) Candidates(_ context.Context) ([]Spec, error) {
	data, err := os.ReadFile(fc.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fc.logger.Warn("proxy candidates file not found", slog.String("path", fc.path))
			return nil, nil
		}
		return nil, fmt.Errorf("read proxy candidates: %w", err)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode proxy candidates %s: %w", fc.path, err)
	}

	specs := make([]Spec, 0, len(entries))
	for i, entry := range entries {
		var spec Spec
		if err := json.Unmarshal(entry, &spec); err != nil {
			fc.logger.Warn("skipping malformed proxy entry",
				slog.Int("index", i),
				slog.String("error", err.Error()))
			continue
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// StaticCandidates serves a fixed list of specs.
type StaticCandidates []Spec

func (sc StaticCandidates) Candidates(_ context.Context) ([]Spec, error) {
	return sc, nil
}
