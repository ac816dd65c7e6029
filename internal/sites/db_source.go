package sites

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/angeloszaimis/uptime-monitor/internal/circuitbreaker"
)

// ConnectFunc opens a Repository.
type ConnectFunc func(ctx context.Context) (Repository, error)

// DBSource serves sites from a database, falling back to a JSON backup.
// Connections are opened lazily and dropped after a failed query so the next
// call reconnects.
type DBSource struct {
	mu      sync.Mutex
	repo    Repository
	connect ConnectFunc
	breaker *circuitbreaker.CircuitBreaker
	backup  *Backup
	scheme  string
	logger  *slog.Logger
}

func NewDBSource(connect ConnectFunc, backup *Backup, scheme string, logger *slog.Logger) *DBSource {
	if scheme == "" {
		scheme = "https"
	}
	return &DBSource{
		connect: connect,
		backup:  backup,
		scheme:  scheme,
		logger:  logger,
	}
}

// WithBreaker guards every database round trip with cb. While it is open the
// backup is served without touching the database.
func (s *DBSource) WithBreaker(cb *circuitbreaker.CircuitBreaker) *DBSource {
	s.breaker = cb
	return s
}

// guard runs fn through the breaker, if any.
func (s *DBSource) guard(fn func() error) error {
	if s.breaker == nil {
		return fn()
	}
	return s.breaker.Do(fn)
}

func (s *DBSource) repository(ctx context.Context) (Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo != nil {
		return s.repo, nil
	}
	repo, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	s.repo = repo
	return repo, nil
}

func (s *DBSource) drop(repo Repository) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo == repo {
		s.repo = nil
	}
}

func (s *DBSource) Sites(ctx context.Context) ([]string, error) {
	urls, err := s.fromDB(ctx)
	if err == nil {
		if err := s.backup.Save(urls); err != nil {
			s.logger.Warn("failed to save site backup", "error", err)
		}
		return urls, nil
	}

	s.logger.Error("failed to load sites from database, using backup", "error", err)
	backup, berr := s.backup.Load()
	if berr != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSites, errors.Join(err, berr))
	}
	return backup, nil
}

func (s *DBSource) fromDB(ctx context.Context) ([]string, error) {
	var names []string
	err := s.guard(func() error {
		repo, err := s.repository(ctx)
		if err != nil {
			return err
		}
		names, err = repo.EnabledNames(ctx)
		if err != nil {
			s.drop(repo)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		urls = append(urls, s.scheme+"://"+name)
	}
	return urls, nil
}

// IsEnabled asks the database about rawURL. When the database is unreachable
// the backup list is consulted instead.
func (s *DBSource) IsEnabled(ctx context.Context, rawURL string) (bool, error) {
	enabled, err := s.enabledInDB(ctx, rawURL)
	if err == nil {
		return enabled, nil
	}

	backup, berr := s.backup.Load()
	if berr != nil {
		return false, fmt.Errorf("check %s: %w", rawURL, err)
	}
	s.logger.Warn("database unavailable, answering from backup", "url", rawURL, "error", err)
	return slices.Contains(backup, rawURL), nil
}

func (s *DBSource) enabledInDB(ctx context.Context, rawURL string) (bool, error) {
	var enabled bool
	err := s.guard(func() error {
		repo, err := s.repository(ctx)
		if err != nil {
			return err
		}
		enabled, err = repo.IsEnabled(ctx, s.name(rawURL))
		if err != nil {
			s.drop(repo)
		}
		return err
	})
	return enabled, err
}

// name strips the scheme that Sites added.
func (s *DBSource) name(rawURL string) string {
	if name, ok := strings.CutPrefix(rawURL, s.scheme+"://"); ok {
		return name
	}
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host + strings.TrimSuffix(u.Path, "/")
	}
	return rawURL
}
