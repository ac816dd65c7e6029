package throttle

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Resolver maps a host to an IP address.
type Resolver interface {
	Resolve(ctx context.Context, host string) (string, bool)
}

type IPThrottle struct {
	mutex    sync.RWMutex
	sems     map[string]*semaphore.Weighted
	limit    int64
	resolver Resolver
}

// Permit is held for the duration of one check. Release is safe to call more
// than once.
type Permit struct {
	Key  string
	sem  *semaphore.Weighted
	once sync.Once
}

func (p *Permit) Release() {
	p.once.Do(func() { p.sem.Release(1) })
}

func New(limit int, resolver Resolver) *IPThrottle {
	if limit < 1 {
		limit = 1
	}
	return &IPThrottle{
		sems:     make(map[string]*semaphore.Weighted),
		limit:    int64(limit),
		resolver: resolver,
	}
}

// Acquire blocks until a permit for the address behind rawURL is free or ctx
// is done.
func (t *IPThrottle) Acquire(ctx context.Context, rawURL string) (*Permit, error) {
	key, err := t.Key(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	sem := t.semaphore(key)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire permit for %s: %w", key, err)
	}
	return &Permit{Key: key, sem: sem}, nil
}

// Key returns the address used to bucket rawURL, or its host when the lookup
// fails.
func (t *IPThrottle) Key(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	if t.resolver != nil {
		if ip, ok := t.resolver.Resolve(ctx, host); ok {
			return ip, nil
		}
	}
	return host, nil
}

func (t *IPThrottle) semaphore(key string) *semaphore.Weighted {
	t.mutex.RLock()
	sem, exists := t.sems[key]
	t.mutex.RUnlock()

	if exists {
		return sem
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if sem, exists = t.sems[key]; exists {
		return sem
	}

	sem = semaphore.NewWeighted(t.limit)
	t.sems[key] = sem
	return sem
}

// Len reports how many addresses have a semaphore.
func (t *IPThrottle) Len() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return len(t.sems)
}
