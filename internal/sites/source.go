package sites

import (
	"context"
	"errors"
	"slices"
)

// ErrNoSites is returned when neither the backing store nor a backup could
// provide an endpoint list.
var ErrNoSites = errors.New("no site list available")

type Source interface {
	Sites(ctx context.Context) ([]string, error)
	IsEnabled(ctx context.Context, url string) (bool, error)
}

// Static serves a fixed list. Every listed URL is enabled.
type Static struct {
	urls []string
}

func NewStatic(urls []string) *Static {
	return &Static{urls: slices.Clone(urls)}
}

func (s *Static) Sites(_ context.Context) ([]string, error) {
	if len(s.urls) == 0 {
		return nil, ErrNoSites
	}
	return slices.Clone(s.urls), nil
}

func (s *Static) IsEnabled(_ context.Context, url string) (bool, error) {
	return slices.Contains(s.urls, url), nil
}
