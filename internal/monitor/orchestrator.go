package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/uptime-monitor/internal/checker"
	"github.com/angeloszaimis/uptime-monitor/internal/downtime"
	"github.com/angeloszaimis/uptime-monitor/internal/throttle"
)

// SiteSource supplies the endpoint list for each cycle.
type SiteSource interface {
	Sites(ctx context.Context) ([]string, error)
}

// Throttle bounds concurrent checks per destination IP.
type Throttle interface {
	Acquire(ctx context.Context, rawURL string) (*throttle.Permit, error)
}

// Checker runs one check inside a shared session.
type Checker interface {
	NewSession() *checker.Session
	Check(ctx context.Context, s *checker.Session, rawURL string) checker.Result
}

// Tracker consumes failed results and owns the downtime state.
type Tracker interface {
	Observe(res checker.Result) bool
}

// Notifier accepts EXCEPTION messages raised by the cycle.
type Notifier interface {
	Enqueue(msg string)
}

// Recorder stores every check result.
type Recorder interface {
	Record(ctx context.Context, res checker.Result) error
}

// Metrics receives per-check and per-cycle measurements.
type Metrics interface {
	RecordCheck(url string, statusCode int, duration time.Duration, attempts int)
	RecordCycle(duration time.Duration)
}

// Deps are the collaborators of an Orchestrator. Recorder and Metrics are
// optional.
type Deps struct {
	Sites    SiteSource
	Throttle Throttle
	Checker  Checker
	Tracker  Tracker
	Notifier Notifier
	Recorder Recorder
	Metrics  Metrics
}

// Orchestrator drives the periodic check cycle.
type Orchestrator struct {
	deps     Deps
	interval time.Duration
	logger   *slog.Logger

	mu    sync.RWMutex
	sites []string
}

// New builds an Orchestrator that starts a cycle every interval.
func New(deps Deps, interval time.Duration, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		deps:     deps,
		interval: interval,
		logger:   logger.With(slog.String("component", "monitor")),
	}
}

// Run loads the endpoint list and runs a cycle every interval until ctx is
// done. Only a failed first load is returned as an error; later load failures
// keep the previous list.
func (o *Orchestrator) Run(ctx context.Context) error {
	urls, err := o.deps.Sites.Sites(ctx)
	if err != nil {
		return fmt.Errorf("initial endpoint load: %w", err)
	}
	o.setSites(urls)
	o.logger.Info("Monitor started", slog.Int("sites", len(urls)), slog.Duration("interval", o.interval))

	for {
		o.RunCycle(ctx, urls)

		timer := time.NewTimer(o.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			o.logger.Info("Monitor stopped")
			return nil
		case <-timer.C:
		}

		next, err := o.deps.Sites.Sites(ctx)
		if err != nil {
			o.logger.Error("failed to reload endpoints, keeping previous list",
				slog.Int("sites", len(urls)), slog.Any("err", err))
			continue
		}
		urls = next
		o.setSites(urls)
	}
}

// RunCycle checks every URL once and returns when all checks are done.
func (o *Orchestrator) RunCycle(ctx context.Context, urls []string) {
	start := time.Now()
	session := o.deps.Checker.NewSession()
	defer session.Close()

	var g errgroup.Group
	for _, url := range urls {
		g.Go(func() error {
			o.process(ctx, session, url)
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordCycle(elapsed)
	}
	o.logger.Info("Check cycle completed", slog.Int("sites", len(urls)), slog.Duration("elapsed", elapsed))
}

// Sites returns the endpoint list of the latest successful load.
func (o *Orchestrator) Sites() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.sites)
}

func (o *Orchestrator) setSites(urls []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sites = slices.Clone(urls)
}

func (o *Orchestrator) process(ctx context.Context, session *checker.Session, url string) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("check panicked",
				slog.String("url", url), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			o.deps.Notifier.Enqueue(downtime.ExceptionMessage(url, fmt.Errorf("%v", r)))
		}
	}()

	permit, err := o.deps.Throttle.Acquire(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		o.logger.Error("failed to acquire permit", slog.String("url", url), slog.Any("err", err))
		o.deps.Notifier.Enqueue(downtime.ExceptionMessage(url, err))
		return
	}
	defer permit.Release()

	res := o.deps.Checker.Check(ctx, session, url)
	if ctx.Err() != nil && !res.Up() {
		// shutting down, the failure is ours
		return
	}

	o.logger.Info("check completed",
		slog.String("url", res.URL),
		slog.String("status", res.StatusText()),
		slog.Duration("response_time", res.ResponseTime),
		slog.Time("checked_at", res.CheckedAt),
		slog.Int("attempts", res.Attempts),
		slog.String("error", res.Error),
	)

	if o.deps.Recorder != nil {
		if err := o.deps.Recorder.Record(ctx, res); err != nil {
			o.logger.Error("failed to record result", slog.String("url", url), slog.Any("err", err))
		}
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordCheck(res.URL, res.Status, res.ResponseTime, res.Attempts)
	}

	if !res.Up() {
		o.deps.Tracker.Observe(res)
	}
}
