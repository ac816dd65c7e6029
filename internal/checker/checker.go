package checker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ProxySource hands out proxy connection URLs and accepts evictions.
type ProxySource interface {
	GetProxy() (string, bool)
	Evict(ctx context.Context, proxyURL string) error
}

// Options configures a Checker. Zero values fall back to sane defaults.
type Options struct {
	Retries      int
	RetryDelay   time.Duration
	RetryBackoff time.Duration
	Timeout      time.Duration
	PoolSize     int
	LimitPerHost int
	Headers      http.Header
}

var defaultHeaders = http.Header{
	"User-Agent":      {"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"},
	"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"},
	"Accept-Language": {"en-US,en;q=0.9"},
	"Cache-Control":   {"no-cache"},
	"Connection":      {"keep-alive"},
}

// Checker performs HTTP checks with retries and proxy failover.
type Checker struct {
	opts     Options
	proxies  ProxySource
	template *http.Transport
	logger   *slog.Logger
}

// New builds a Checker. proxies may be nil, in which case every attempt is
// made directly.
func New(opts Options, proxies ProxySource, logger *slog.Logger) *Checker {
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Headers == nil {
		opts.Headers = defaultHeaders
	}

	template := http.DefaultTransport.(*http.Transport).Clone()
	if opts.PoolSize > 0 {
		template.MaxIdleConns = opts.PoolSize
		template.MaxIdleConnsPerHost = opts.PoolSize
	}
	if opts.LimitPerHost > 0 {
		template.MaxConnsPerHost = opts.LimitPerHost
	}

	return &Checker{
		opts:     opts,
		proxies:  proxies,
		template: template,
		logger:   logger,
	}
}

// NewSession opens a connection scope. Callers must Close it.
func (c *Checker) NewSession() *Session {
	return newSession(c.template, c.opts.Timeout)
}

// CheckOnce runs Check in a session of its own. Recovery loops use it since
// their checks are too far apart to benefit from pooled connections.
func (c *Checker) CheckOnce(ctx context.Context, rawURL string) Result {
	s := c.NewSession()
	defer s.Close()
	return c.Check(ctx, s, rawURL)
}

// Check runs up to Retries attempts against rawURL and returns the first 200
// or the last attempt's result.
func (c *Checker) Check(ctx context.Context, s *Session, rawURL string) Result {
	proxyURL := c.nextProxy()

	var last Result
	for attempt := 1; attempt <= c.opts.Retries; attempt++ {
		last = c.attempt(ctx, s, rawURL, proxyURL)
		last.Attempts = attempt

		switch last.Kind {
		case KindSuccess, KindFatal:
			return last
		case KindStatus:
			c.logger.Debug("unexpected status",
				"url", rawURL, "status", last.Status, "attempt", attempt)
		case KindProxy:
			c.logger.Warn("proxy failed, evicting",
				"url", rawURL, "proxy", proxyURL, "error", last.Error)
			if proxyURL != "" && c.proxies != nil {
				if err := c.proxies.Evict(ctx, proxyURL); err != nil {
					c.logger.Error("failed to evict proxy", "proxy", proxyURL, "error", err)
				}
			}
			proxyURL = c.nextProxy()
		case KindCertificate:
			c.logger.Warn("certificate error, rotating proxy",
				"url", rawURL, "proxy", proxyURL, "error", last.Error)
			proxyURL = c.nextProxy()
		case KindTransient:
			c.logger.Debug("request failed, resetting connection",
				"url", rawURL, "attempt", attempt, "error", last.Error)
			s.reset(proxyURL)
			proxyURL = c.nextProxy()
		}

		if attempt == c.opts.Retries {
			break
		}
		delay := c.opts.RetryDelay + time.Duration(attempt-1)*c.opts.RetryBackoff
		if err := sleep(ctx, delay); err != nil {
			return last
		}
	}

	return last
}

func (c *Checker) attempt(ctx context.Context, s *Session, rawURL, proxyURL string) Result {
	start := time.Now()
	res := Result{
		URL:       rawURL,
		Status:    StatusException,
		CheckedAt: start.UTC(),
		Proxy:     proxyURL,
	}

	client, err := s.client(proxyURL)
	if err != nil {
		res.Error = fmt.Sprintf("build client: %v", err)
		res.Kind = KindProxy
		return res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		res.Error = fmt.Sprintf("build request: %v", err)
		res.Kind = KindFatal
		return res
	}
	req.Header = c.opts.Headers.Clone()

	resp, err := client.Do(req)
	res.ResponseTime = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		res.Kind = Classify(err, proxyURL != "")
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	res.Status = resp.StatusCode
	if resp.StatusCode == http.StatusOK {
		res.Kind = KindSuccess
	} else {
		res.Kind = KindStatus
	}
	return res
}

func (c *Checker) nextProxy() string {
	if c.proxies == nil {
		return ""
	}
	proxyURL, ok := c.proxies.GetProxy()
	if !ok {
		return ""
	}
	return proxyURL
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
