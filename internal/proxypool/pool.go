package proxypool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math/rand/v2"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Prober verifies that a proxy can reach the probe target.
type Prober interface {
	Probe(ctx context.Context, p Proxy) error
}

type Options struct {
	ProbeURL     string
	ProbeTimeout time.Duration
	// MaxAge is how old the oldest health record may get before a sweep is due.
	MaxAge time.Duration
	// Transport is cloned for every probe. Nil means http.DefaultTransport.
	Transport *http.Transport
	// Prober overrides the HTTP prober built from ProbeURL.
	Prober Prober
	Now    func() time.Time
}

// Pool is the proxy pool. A single mutex guards the candidate list and the
// health record table, including the store I/O that loads and persists them.
type Pool struct {
	mu         sync.Mutex
	candidates []Proxy
	records    map[string]HealthRecord

	source CandidateSource
	store  StateStore
	prober Prober
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger

	sweeping atomic.Bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(source CandidateSource, store StateStore, opts Options, logger *slog.Logger) *Pool {
	prober := opts.Prober
	if prober == nil {
		prober = &httpProber{url: opts.ProbeURL, timeout: opts.ProbeTimeout, base: opts.Transport}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		records: make(map[string]HealthRecord),
		source:  source,
		store:   store,
		prober:  prober,
		maxAge:  opts.MaxAge,
		now:     now,
		logger:  logger.With(slog.String("component", "proxypool")),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Init seeds the pool from persisted state, loads candidates and sweeps if the
// seeded state is incomplete or stale. Failures leave the pool usable.
func (p *Pool) Init(ctx context.Context) error {
	var errs []error
	if err := p.LoadState(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := p.LoadCandidates(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := p.EnsureFresh(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadCandidates replaces the candidate list. Malformed entries are dropped.
func (p *Pool) LoadCandidates(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	specs, err := p.source.Candidates(ctx)
	if err != nil {
		return fmt.Errorf("load proxy candidates: %w", err)
	}

	seen := make(map[string]bool, len(specs))
	candidates := make([]Proxy, 0, len(specs))
	for _, spec := range specs {
		px, err := spec.Normalize()
		if err != nil {
			p.logger.Warn("dropping proxy candidate", slog.String("error", err.Error()))
			continue
		}
		if seen[px.Key()] {
			continue
		}
		seen[px.Key()] = true
		candidates = append(candidates, px)
	}

	p.candidates = candidates
	p.logger.Info("proxy candidates loaded", slog.Int("count", len(candidates)))
	return nil
}

// LoadState seeds the health table from the store.
func (p *Pool) LoadState(ctx context.Context) error {
	if p.store == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	records, err := p.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load proxy state: %w", err)
	}
	p.records = records
	p.logger.Info("proxy state loaded", slog.Int("healthy", len(records)))
	return nil
}

// Sweep probes every candidate concurrently. Passing proxies get a fresh
// record, failing ones lose theirs. The table is persisted afterwards.
func (p *Pool) Sweep(ctx context.Context) error {
	p.mu.Lock()
	candidates := slices.Clone(p.candidates)
	p.mu.Unlock()

	p.logger.Info("proxy health sweep started", slog.Int("candidates", len(candidates)))

	results := make([]error, len(candidates))
	var g errgroup.Group
	for i, px := range candidates {
		g.Go(func() error {
			results[i] = p.prober.Probe(ctx, px)
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	checkedAt := p.now()
	keep := make(map[string]bool, len(candidates))
	healthy := 0
	for i, px := range candidates {
		key := px.Key()
		keep[key] = true
		if err := results[i]; err != nil {
			p.logger.Warn("proxy failed health probe",
				slog.String("proxy", key),
				slog.String("error", err.Error()))
			delete(p.records, key)
			continue
		}
		p.records[key] = newHealthRecord(px, checkedAt)
		healthy++
	}
	if len(candidates) > 0 {
		maps.DeleteFunc(p.records, func(key string, _ HealthRecord) bool {
			return !keep[key]
		})
	}

	p.logger.Info("proxy health sweep finished",
		slog.Int("healthy", healthy),
		slog.Int("candidates", len(candidates)))

	return p.persistLocked(ctx)
}

// EnsureFresh sweeps when a candidate has no record or the oldest record is
// older than MaxAge.
func (p *Pool) EnsureFresh(ctx context.Context) error {
	p.mu.Lock()
	due := p.sweepDueLocked()
	p.mu.Unlock()

	if !due {
		return nil
	}
	return p.Sweep(ctx)
}

func (p *Pool) sweepDueLocked() bool {
	for _, px := range p.candidates {
		if _, ok := p.records[px.Key()]; !ok {
			return true
		}
	}
	oldest, ok := p.oldestLocked()
	return ok && p.now().Sub(oldest) > p.maxAge
}

func (p *Pool) oldestLocked() (time.Time, bool) {
	var oldest time.Time
	found := false
	for _, rec := range p.records {
		if !found || rec.LastChecked.Before(oldest) {
			oldest = rec.LastChecked
			found = true
		}
	}
	return oldest, found
}

// GetProxy returns a random healthy proxy URL. When the oldest record is past
// MaxAge a background sweep is started; the call itself never blocks on it.
func (p *Pool) GetProxy() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.records) == 0 {
		p.logger.Error("no proxies available")
		return "", false
	}

	if oldest, _ := p.oldestLocked(); p.now().Sub(oldest) > p.maxAge {
		p.sweepInBackground()
	}

	healthy := slices.Collect(maps.Values(p.records))
	return healthy[rand.IntN(len(healthy))].ProxyURL, true
}

func (p *Pool) sweepInBackground() {
	if !p.sweeping.CompareAndSwap(false, true) {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sweeping.Store(false)
		if err := p.Sweep(p.ctx); err != nil {
			p.logger.Error("background proxy sweep failed", slog.String("error", err.Error()))
		}
	}()
}

// Evict drops the record matching proxyURL by host:port, ignoring credentials,
// and persists the table.
func (p *Pool) Evict(ctx context.Context, proxyURL string) error {
	key := KeyFromURL(proxyURL)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.records[key]; ok {
		delete(p.records, key)
		p.logger.Info("proxy evicted", slog.String("proxy", key))
	} else {
		p.logger.Warn("proxy not found in health records", slog.String("proxy", key))
	}
	return p.persistLocked(ctx)
}

func (p *Pool) persistLocked(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	if err := p.store.Save(ctx, maps.Clone(p.records)); err != nil {
		return fmt.Errorf("persist proxy state: %w", err)
	}
	return nil
}

// Records returns a snapshot of the health table ordered by key.
func (p *Pool) Records() []HealthRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	records := slices.Collect(maps.Values(p.records))
	slices.SortFunc(records, func(a, b HealthRecord) int {
		if a.Key < b.Key {
			return -1
		}
		if a.Key > b.Key {
			return 1
		}
		return 0
	})
	return records
}

// Candidates returns a copy of the parsed candidate list.
func (p *Pool) Candidates() []Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.candidates)
}

// Close stops background sweeps and waits for them to return.
func (p *Pool) Close() {
	p.cancel()
	p.wg.Wait()
}

type httpProber struct {
	url     string
	timeout time.Duration
	base    *http.Transport
}

func (hp *httpProber) Probe(ctx context.Context, px Proxy) error {
	transport, err := NewTransport(hp.base, px.URL())
	if err != nil {
		return err
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{Transport: transport, Timeout: hp.timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hp.url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}
