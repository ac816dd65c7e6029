package checker_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/uptime-monitor/internal/checker"
)

type fakeProxies struct {
	mu      sync.Mutex
	queue   []string
	handed  int
	evicted []string
}

func (f *fakeProxies) GetProxy() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handed++
	if len(f.queue) == 0 {
		return "", false
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	return next, true
}

func (f *fakeProxies) Evict(_ context.Context, proxyURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = append(f.evicted, proxyURL)
	return nil
}

func (f *fakeProxies) Evicted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.evicted...)
}

func countingServer(statusFor func(n int32) int) (*httptest.Server, *atomic.Int32) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		w.WriteHeader(statusFor(n))
	}))
	return srv, &hits
}

var _ = Describe("Checker", func() {
	var (
		ctx    context.Context
		logger *slog.Logger
		opts   checker.Options
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		opts = checker.Options{
			Retries:    3,
			RetryDelay: 5 * time.Millisecond,
			Timeout:    2 * time.Second,
		}
	})

	Describe("Check", func() {
		It("should grow the wait between attempts by RetryBackoff", func() {
			srv, hits := countingServer(func(int32) int { return http.StatusServiceUnavailable })
			defer srv.Close()

			opts.RetryDelay = 10 * time.Millisecond
			opts.RetryBackoff = 100 * time.Millisecond
			c := checker.New(opts, nil, logger)

			started := time.Now()
			res := c.CheckOnce(ctx, srv.URL)
			Expect(hits.Load()).To(Equal(int32(3)))
			Expect(res.Attempts).To(Equal(3))
			Expect(time.Since(started)).To(BeNumerically(">=", 120*time.Millisecond))
		})

		It("should make exactly Retries attempts when the endpoint keeps failing", func() {
			srv, hits := countingServer(func(int32) int { return http.StatusInternalServerError })
			defer srv.Close()

			c := checker.New(opts, nil, logger)
			s := c.NewSession()
			defer s.Close()

			res := c.Check(ctx, s, srv.URL)
			Expect(hits.Load()).To(Equal(int32(3)))
			Expect(res.Status).To(Equal(http.StatusInternalServerError))
			Expect(res.Attempts).To(Equal(3))
			Expect(res.Up()).To(BeFalse())
			Expect(res.Kind).To(Equal(checker.KindStatus))
		})

		It("should stop at the first 200", func() {
			srv, hits := countingServer(func(n int32) int {
				if n < 2 {
					return http.StatusServiceUnavailable
				}
				return http.StatusOK
			})
			defer srv.Close()

			c := checker.New(opts, nil, logger)
			s := c.NewSession()
			defer s.Close()

			res := c.Check(ctx, s, srv.URL)
			Expect(hits.Load()).To(Equal(int32(2)))
			Expect(res.Up()).To(BeTrue())
			Expect(res.Attempts).To(Equal(2))
			Expect(res.ResponseTime).To(BeNumerically(">", 0))
			Expect(res.CheckedAt).NotTo(BeZero())
		})

		It("should treat redirects to a 200 as up", func() {
			target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			defer target.Close()
			srv := httptest.NewServer(http.RedirectHandler(target.URL, http.StatusFound))
			defer srv.Close()

			c := checker.New(opts, nil, logger)
			s := c.NewSession()
			defer s.Close()

			Expect(c.Check(ctx, s, srv.URL).Status).To(Equal(http.StatusOK))
		})

		It("should send browser-like headers", func() {
			var ua atomic.Value
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ua.Store(r.Header.Get("User-Agent"))
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			c := checker.New(opts, nil, logger)
			s := c.NewSession()
			defer s.Close()

			c.Check(ctx, s, srv.URL)
			Expect(ua.Load()).To(ContainSubstring("Mozilla/5.0"))
		})

		It("should return the exception sentinel when nothing answers", func() {
			srv := httptest.NewServer(http.NotFoundHandler())
			addr := srv.URL
			srv.Close()

			c := checker.New(opts, nil, logger)
			s := c.NewSession()
			defer s.Close()

			res := c.Check(ctx, s, addr)
			Expect(res.Status).To(Equal(checker.StatusException))
			Expect(res.StatusText()).To(Equal("Exception"))
			Expect(res.Error).NotTo(BeEmpty())
			Expect(res.Attempts).To(Equal(3))
		})

		It("should not retry a request that cannot be built", func() {
			c := checker.New(opts, nil, logger)
			s := c.NewSession()
			defer s.Close()

			res := c.Check(ctx, s, "http://[::1")
			Expect(res.Kind).To(Equal(checker.KindFatal))
			Expect(res.Attempts).To(Equal(1))
		})

		It("should evict a dead proxy and retry with the next one", func() {
			srv, _ := countingServer(func(int32) int { return http.StatusOK })
			defer srv.Close()

			proxies := &fakeProxies{queue: []string{"http://127.0.0.1:1"}}
			c := checker.New(opts, proxies, logger)
			s := c.NewSession()
			defer s.Close()

			res := c.Check(ctx, s, srv.URL)
			Expect(res.Up()).To(BeTrue())
			Expect(res.Attempts).To(Equal(2))
			Expect(proxies.Evicted()).To(ConsistOf("http://127.0.0.1:1"))
		})

		It("should rotate but not evict on certificate errors", func() {
			srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			proxies := &fakeProxies{}
			opts.Retries = 2
			c := checker.New(opts, proxies, logger)
			s := c.NewSession()
			defer s.Close()

			res := c.Check(ctx, s, srv.URL)
			Expect(res.Kind).To(Equal(checker.KindCertificate))
			Expect(res.Status).To(Equal(checker.StatusException))
			Expect(proxies.Evicted()).To(BeEmpty())
			Expect(proxies.handed).To(Equal(3))
		})

		It("should give up early when the context is cancelled", func() {
			srv, hits := countingServer(func(int32) int { return http.StatusInternalServerError })
			defer srv.Close()

			opts.Retries = 10
			opts.RetryDelay = time.Second
			c := checker.New(opts, nil, logger)
			s := c.NewSession()
			defer s.Close()

			cctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()

			res := c.Check(cctx, s, srv.URL)
			Expect(res.Status).To(Equal(http.StatusInternalServerError))
			Expect(hits.Load()).To(Equal(int32(1)))
		})
	})

	Describe("Classify", func() {
		It("should report success for a nil error", func() {
			Expect(checker.Classify(nil, true)).To(Equal(checker.KindSuccess))
		})

		It("should only report proxy errors for proxied attempts", func() {
			err := &net.OpError{Op: "proxyconnect", Net: "tcp", Err: io.EOF}
			Expect(checker.Classify(err, true)).To(Equal(checker.KindProxy))
			Expect(checker.Classify(err, false)).To(Equal(checker.KindTransient))
		})

		It("should treat cancellation as fatal", func() {
			Expect(checker.Classify(context.Canceled, false)).To(Equal(checker.KindFatal))
		})

		It("should name every kind", func() {
			Expect(checker.KindCertificate.String()).To(Equal("certificate"))
			Expect(checker.Kind(99).String()).To(Equal("unknown"))
		})
	})
})
