package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/uptime-monitor/config"
	"github.com/angeloszaimis/uptime-monitor/internal/checker"
	"github.com/angeloszaimis/uptime-monitor/internal/circuitbreaker"
	"github.com/angeloszaimis/uptime-monitor/internal/downtime"
	"github.com/angeloszaimis/uptime-monitor/internal/httpserver"
	"github.com/angeloszaimis/uptime-monitor/internal/metrics"
	"github.com/angeloszaimis/uptime-monitor/internal/monitor"
	"github.com/angeloszaimis/uptime-monitor/internal/notify"
	"github.com/angeloszaimis/uptime-monitor/internal/proxypool"
	"github.com/angeloszaimis/uptime-monitor/internal/resolver"
	"github.com/angeloszaimis/uptime-monitor/internal/results"
	"github.com/angeloszaimis/uptime-monitor/internal/sites"
	"github.com/angeloszaimis/uptime-monitor/internal/throttle"
)

const (
	dbConnectAttempts = 5
	dbConnectDelay    = 5 * time.Second
	breakerThreshold  = 3
	breakerReset      = time.Minute
	sitesBreaker      = "sites-db"
)

type app struct {
	log          *slog.Logger
	collector    *metrics.Collector
	queue        *notify.Queue
	proxies      *countingProxies
	tracker      *downtime.Tracker
	orchestrator *monitor.Orchestrator
	breakers     *circuitbreaker.Registry
	scheduler    *cron.Cron
	server       *httpserver.Server
	closers      []func()
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{
		log:       log,
		collector: metrics.NewCollector(1000, log),
		breakers:  circuitbreaker.NewRegistry(breakerThreshold, breakerReset),
	}

	a.queue = notify.NewQueue(newTransport(cfg.Notify, log), notify.Options{
		BaseDelay:   config.Duration(cfg.Notify.BaseDelay),
		RetryMargin: config.Duration(cfg.Notify.RetryMargin),
	}, log.With(slog.String("component", "notify")))

	var proxies checker.ProxySource
	if cfg.Proxy.Enabled {
		pool, closeStore, err := newProxyPool(ctx, cfg.Proxy, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, closeStore, pool.Close)
		a.proxies = &countingProxies{Pool: pool, collector: a.collector}
		proxies = a.proxies

		a.scheduler, err = scheduleSweeps(pool, cfg.Proxy.SweepSchedule, log)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	check := checker.New(checker.Options{
		Retries:      cfg.Monitor.Retries,
		RetryDelay:   config.Duration(cfg.Monitor.RetryDelay),
		RetryBackoff: config.Duration(cfg.Monitor.RetryBackoff),
		Timeout:      config.Duration(cfg.Monitor.Timeout),
		PoolSize:     cfg.Monitor.PoolSize,
		LimitPerHost: cfg.Monitor.LimitPerHost,
	}, proxies, log.With(slog.String("component", "checker")))

	source, err := newSiteSource(ctx, cfg.Sites, a.breakers.GetBreaker(sitesBreaker), log)
	if err != nil {
		a.Close()
		return nil, err
	}

	var recorder *results.SQLiteSink
	if cfg.Results.Enabled {
		recorder, err = results.NewSQLiteSink(ctx, cfg.Results.SQLitePath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open result sink: %w", err)
		}
		a.closers = append(a.closers, func() { _ = recorder.Close() })
	}

	trackerOpts := downtime.Options{
		InitialDelay:  config.Duration(cfg.Monitor.RetryDelay),
		RecoveryDelay: config.Duration(cfg.Monitor.RecoveryDelay),
		Backoff:       config.Duration(cfg.Monitor.RecoveryBackoff),
		Enabled:       source,
		Observer:      a.collector,
	}
	deps := monitor.Deps{
		Sites: source,
		Throttle: throttle.New(cfg.Monitor.LimitPerIP, resolver.New(resolver.Options{
			CacheSize:  cfg.Resolver.CacheSize,
			CacheTTL:   config.Duration(cfg.Resolver.CacheTTL),
			RetryDelay: config.Duration(cfg.Resolver.RetryDelay),
		}, log)),
		Checker:  check,
		Notifier: a.queue,
		Metrics:  a.collector,
	}
	// a typed nil would make the optional recorder look present
	if recorder != nil {
		trackerOpts.Recorder = recorder
		deps.Recorder = recorder
	}

	a.tracker = downtime.New(check, a.queue, trackerOpts, log.With(slog.String("component", "downtime")))
	deps.Tracker = a.tracker
	a.orchestrator = monitor.New(deps, config.Duration(cfg.Monitor.Interval), log)

	if cfg.Server.Enabled {
		var proxyStatus healthyCounter
		if a.proxies != nil {
			proxyStatus = a.proxies
		}
		router := setupRouter(a.collector, statusHandler(a.tracker, a.orchestrator, a.queue, proxyStatus, a.breakers))
		a.server, err = httpserver.New(cfg.Server.Address, router)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create status server: %w", err)
		}
	}

	return a, nil
}

// run blocks until ctx is cancelled or a component fails. The collector and
// the notification worker are stopped before it returns either way.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.collector.Start(ctx)
	go a.queue.Run(ctx)

	if a.scheduler != nil {
		a.scheduler.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.orchestrator.Run(gctx)
	})

	if a.server != nil {
		g.Go(func() error {
			if err := a.server.Start(); err != nil {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return a.server.Shutdown(context.Background())
		})
	}

	return g.Wait()
}

// Close releases every component in reverse order of creation.
func (a *app) Close() {
	if a.scheduler != nil {
		<-a.scheduler.Stop().Done()
	}
	if a.tracker != nil {
		a.tracker.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newTransport(cfg config.NotifyConfig, log *slog.Logger) notify.Transport {
	switch cfg.Driver {
	case config.NotifyDriverTelegram:
		return notify.NewTelegram(cfg.APIURL, cfg.Token, cfg.ChatID, &http.Client{Timeout: 30 * time.Second})
	default:
		return notify.NewLogTransport(log.With(slog.String("component", "notify")))
	}
}

func newSiteSource(ctx context.Context, cfg config.SitesConfig, breaker *circuitbreaker.CircuitBreaker, log *slog.Logger) (sites.Source, error) {
	switch cfg.Driver {
	case config.SitesDriverStatic:
		return sites.NewStatic(cfg.Static), nil
	case config.SitesDriverMySQL:
		connect := func(ctx context.Context) (sites.Repository, error) {
			db, err := sites.OpenMySQL(ctx, cfg.DSN, dbConnectAttempts, dbConnectDelay, log)
			if err != nil {
				return nil, err
			}
			return sites.NewGormRepository(db), nil
		}
		src := sites.NewDBSource(connect, sites.NewBackup(cfg.BackupFile), cfg.Scheme,
			log.With(slog.String("component", "sites"))).WithBreaker(breaker)
		return src, nil
	default:
		return nil, fmt.Errorf("unknown sites driver %q", cfg.Driver)
	}
}

func newStateStore(cfg config.ProxyConfig) (proxypool.StateStore, func(), error) {
	switch cfg.StateBackend {
	case config.StateBackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return proxypool.NewRedisStore(client, cfg.RedisKey), func() { _ = client.Close() }, nil
	case config.StateBackendFile, "":
		return proxypool.NewFileStore(cfg.StateFile), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown proxy state backend %q", cfg.StateBackend)
	}
}

// newProxyPool builds the pool and seeds it. Seeding failures are logged,
// the pool stays usable in direct mode until a sweep succeeds.
func newProxyPool(ctx context.Context, cfg config.ProxyConfig, log *slog.Logger) (*proxypool.Pool, func(), error) {
	store, closeStore, err := newStateStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	pool := proxypool.New(
		proxypool.NewFileCandidates(cfg.CandidatesFile, log),
		store,
		proxypool.Options{
			ProbeURL:     cfg.ProbeURL,
			ProbeTimeout: config.Duration(cfg.ProbeTimeout),
			MaxAge:       config.Duration(cfg.CheckInterval),
		},
		log,
	)

	if err := pool.Init(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			pool.Close()
			closeStore()
			return nil, nil, err
		}
		log.Warn("proxy pool initialised with errors", slog.Any("err", err))
	}
	return pool, closeStore, nil
}

// scheduleSweeps refreshes the candidate list and re-probes every proxy on
// the given cron schedule.
func scheduleSweeps(pool *proxypool.Pool, schedule string, log *slog.Logger) (*cron.Cron, error) {
	if schedule == "" {
		return nil, nil
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		log.Info("Starting scheduled proxy sweep")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		if err := pool.LoadCandidates(ctx); err != nil {
			log.Error("failed to reload proxy candidates", slog.Any("err", err))
		}
		if err := pool.Sweep(ctx); err != nil {
			log.Error("scheduled proxy sweep failed", slog.Any("err", err))
			return
		}
		log.Info("Scheduled proxy sweep completed", slog.Int("healthy", len(pool.Records())))
	})
	if err != nil {
		return nil, fmt.Errorf("register proxy sweep %q: %w", schedule, err)
	}
	return c, nil
}

// countingProxies reports evictions to the metrics collector.
type countingProxies struct {
	*proxypool.Pool
	collector *metrics.Collector
}

func (cp *countingProxies) Evict(ctx context.Context, proxyURL string) error {
	cp.collector.RecordEviction(proxyURL)
	return cp.Pool.Evict(ctx, proxyURL)
}

func (cp *countingProxies) Healthy() int {
	return len(cp.Records())
}
