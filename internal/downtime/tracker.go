package downtime

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/angeloszaimis/uptime-monitor/internal/checker"
)

// Checker runs a single resilient check for a recovery iteration.
type Checker interface {
	CheckOnce(ctx context.Context, url string) checker.Result
}

// Notifier accepts outgoing messages without blocking.
type Notifier interface {
	Enqueue(msg string)
}

// EnabledChecker reports whether a URL is still scheduled for monitoring.
type EnabledChecker interface {
	IsEnabled(ctx context.Context, url string) (bool, error)
}

// Recorder receives every result produced by a recovery check.
type Recorder interface {
	Record(ctx context.Context, res checker.Result) error
}

// Observer is told about state transitions.
type Observer interface {
	Transition(url string, down bool, downtime time.Duration)
}

// Options tunes the recovery loops. Enabled, Recorder and Observer are
// optional.
type Options struct {
	InitialDelay  time.Duration
	RecoveryDelay time.Duration
	Backoff       time.Duration
	Enabled       EnabledChecker
	Recorder      Recorder
	Observer      Observer
	Now           func() time.Time
}

// Entry is a snapshot of one down URL.
type Entry struct {
	URL        string    `json:"url"`
	DownSince  time.Time `json:"down_since"`
	Recovering bool      `json:"recovering"`
}

type task struct {
	url string
}

// Tracker owns the down-since map and at most one recovery loop per URL.
type Tracker struct {
	mu        sync.Mutex
	downSince map[string]time.Time
	tasks     map[string]*task
	closed    bool

	checker  Checker
	notifier Notifier
	opts     Options
	now      func() time.Time
	logger   *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Tracker. Close stops every recovery loop it started.
func New(c Checker, n Notifier, opts Options, logger *slog.Logger) *Tracker {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		downSince: make(map[string]time.Time),
		tasks:     make(map[string]*task),
		checker:   c,
		notifier:  n,
		opts:      opts,
		now:       now,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Observe feeds a regular-cycle result into the tracker. A non-200 result for
// a URL that is not down records it as down, emits a DOWN notification and
// starts its recovery loop. It reports whether a transition happened.
func (t *Tracker) Observe(res checker.Result) bool {
	if res.Up() {
		return false
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	since, down := t.downSince[res.URL]
	if down && t.tasks[res.URL] != nil {
		t.mu.Unlock()
		return false
	}
	if !down {
		since = t.now()
		t.downSince[res.URL] = since
	}
	tk := &task{url: res.URL}
	t.tasks[res.URL] = tk
	t.wg.Add(1)
	t.mu.Unlock()

	if !down {
		t.notifier.Enqueue(DownMessage(res.URL, res.StatusText(), 0, res.Error))
		if t.opts.Observer != nil {
			t.opts.Observer.Transition(res.URL, true, 0)
		}
		t.logger.Warn("endpoint down", "url", res.URL, "status", res.StatusText())
	} else {
		t.logger.Info("restarting recovery loop", "url", res.URL, "down_since", since)
	}

	go t.recoveryLoop(tk)
	return !down
}

// IsDown reports whether url currently has a down entry.
func (t *Tracker) IsDown(url string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.downSince[url]
	return ok
}

// Down returns a sorted snapshot of the down set.
func (t *Tracker) Down() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.downSince))
	for url, since := range t.downSince {
		out = append(out, Entry{URL: url, DownSince: since, Recovering: t.tasks[url] != nil})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Downtime returns how long url has been down, clamped at zero.
func (t *Tracker) Downtime(url string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.downtimeLocked(url)
}

func (t *Tracker) downtimeLocked(url string) time.Duration {
	since, ok := t.downSince[url]
	if !ok {
		return 0
	}
	d := t.now().Sub(since)
	if d < 0 {
		return 0
	}
	return d
}

// Active returns the number of running recovery loops.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}

// Close stops every recovery loop and waits for them to return.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}

func (t *Tracker) recoveryLoop(tk *task) {
	defer t.wg.Done()
	defer t.release(tk)

	ctx := t.ctx
	if err := sleep(ctx, t.opts.InitialDelay); err != nil {
		return
	}

	for n := 0; ; n++ {
		done, err := t.recoveryStep(ctx, tk.url)
		if done {
			return
		}
		if err != nil {
			t.logger.Error("recovery check failed", "url", tk.url, "error", err)
			t.notifier.Enqueue(ExceptionMessage(tk.url, err))
		}

		wait := t.opts.RecoveryDelay + time.Duration(n)*t.opts.Backoff
		if err := sleep(ctx, wait); err != nil {
			return
		}
	}
}

func (t *Tracker) recoveryStep(ctx context.Context, url string) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("recovery check panicked", "url", url, "panic", r, "stack", string(debug.Stack()))
			done, err = false, fmt.Errorf("panic: %v", r)
		}
	}()

	if t.opts.Enabled != nil {
		enabled, err := t.opts.Enabled.IsEnabled(ctx, url)
		if err != nil {
			return ctx.Err() != nil, fmt.Errorf("check enabled: %w", err)
		}
		if !enabled {
			msg := DisabledMessage(url)
			t.notifier.Enqueue(msg)
			t.logger.Info(msg)
			return true, nil
		}
	}

	res := t.checker.CheckOnce(ctx, url)
	if ctx.Err() != nil {
		return true, nil
	}
	if t.opts.Recorder != nil {
		if err := t.opts.Recorder.Record(ctx, res); err != nil {
			t.logger.Error("failed to record result", "url", url, "error", err)
		}
	}
	t.logger.Info("recovery check",
		"url", url,
		"status", res.StatusText(),
		"response_time", res.ResponseTime,
		"checked_at", res.CheckedAt,
		"error", res.Error,
	)

	if !res.Up() {
		t.notifier.Enqueue(DownMessage(url, res.StatusText(), t.Downtime(url), res.Error))
		return false, nil
	}

	t.mu.Lock()
	downtime := t.downtimeLocked(url)
	delete(t.downSince, url)
	delete(t.tasks, url)
	t.mu.Unlock()

	t.notifier.Enqueue(UpMessage(url, downtime))
	if t.opts.Observer != nil {
		t.opts.Observer.Transition(url, false, downtime)
	}
	t.logger.Info("endpoint back up", "url", url, "downtime", FormatDowntime(downtime))
	return true, nil
}

// release drops tk from the registry unless it was already replaced.
func (t *Tracker) release(tk *task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tasks[tk.url] == tk {
		delete(t.tasks, tk.url)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
