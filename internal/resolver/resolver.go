// Package resolver maps host names to IP addresses for keying per-IP limits.
package resolver

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LookupFunc resolves a host to its addresses.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

type Options struct {
	CacheSize  int
	CacheTTL   time.Duration
	RetryDelay time.Duration
	Lookup     LookupFunc
}

// Resolver looks a host up at most twice and caches successful answers.
type Resolver struct {
	lookup     LookupFunc
	retryDelay time.Duration
	cache      *expirable.LRU[string, string]
	logger     *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Resolver {
	lookup := opts.Lookup
	if lookup == nil {
		lookup = net.DefaultResolver.LookupHost
	}

	r := &Resolver{
		lookup:     lookup,
		retryDelay: opts.RetryDelay,
		logger:     logger.With(slog.String("component", "resolver")),
	}
	if opts.CacheSize > 0 {
		r.cache = expirable.NewLRU[string, string](opts.CacheSize, nil, opts.CacheTTL)
	}
	return r
}

// Resolve returns the first address of host, or false when both attempts fail.
func (r *Resolver) Resolve(ctx context.Context, host string) (string, bool) {
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), true
	}
	if r.cache != nil {
		if ip, ok := r.cache.Get(host); ok {
			return ip, true
		}
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", false
			case <-time.After(r.retryDelay):
			}
		}

		addrs, err := r.lookup(ctx, host)
		if err == nil && len(addrs) > 0 {
			if r.cache != nil {
				r.cache.Add(host, addrs[0])
			}
			return addrs[0], true
		}
		lastErr = err
	}

	attrs := []any{slog.String("host", host)}
	if lastErr != nil {
		attrs = append(attrs, slog.String("error", lastErr.Error()))
	}
	r.logger.Warn("failed to resolve host", attrs...)
	return "", false
}
