package notify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/uptime-monitor/internal/notify"
)

type scriptedTransport struct {
	mu        sync.Mutex
	attempts  []string
	delivered []string
	failures  map[string][]error
}

func (s *scriptedTransport) Send(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, text)
	if errs := s.failures[text]; len(errs) > 0 {
		s.failures[text] = errs[1:]
		return errs[0]
	}
	s.delivered = append(s.delivered, text)
	return nil
}

func (s *scriptedTransport) Attempts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.attempts...)
}

func (s *scriptedTransport) Delivered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.delivered...)
}

var _ = Describe("Queue", func() {
	var (
		ctx       context.Context
		cancel    context.CancelFunc
		logger    *slog.Logger
		transport *scriptedTransport
		opts      notify.Options
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		transport = &scriptedTransport{failures: map[string][]error{}}
		opts = notify.Options{BaseDelay: time.Millisecond, RetryMargin: 2 * time.Millisecond}
	})

	AfterEach(func() {
		cancel()
	})

	It("should deliver in FIFO order", func() {
		q := notify.NewQueue(transport, opts, logger)
		q.Enqueue("A")
		q.Enqueue("B")
		q.Enqueue("C")
		go q.Run(ctx)

		Eventually(transport.Delivered).Should(Equal([]string{"A", "B", "C"}))
		Expect(q.Len()).To(BeZero())
	})

	It("should retry a rate-limited message before later ones", func() {
		transport.failures["A"] = []error{&notify.RateLimitError{RetryAfter: 0}}
		q := notify.NewQueue(transport, opts, logger)
		q.Enqueue("A")
		q.Enqueue("B")
		go q.Run(ctx)

		Eventually(transport.Delivered).Should(Equal([]string{"A", "B"}))
		Expect(transport.Attempts()).To(Equal([]string{"A", "A", "B"}))
	})

	It("should raise the delay on rate limits and reset it on success", func() {
		transport.failures["A"] = []error{&notify.RateLimitError{RetryAfter: 50 * time.Millisecond}}
		q := notify.NewQueue(transport, opts, logger)
		q.Enqueue("A")
		go q.Run(ctx)

		Eventually(q.Delay).Should(Equal(52 * time.Millisecond))
		Eventually(transport.Delivered).Should(Equal([]string{"A"}))
		Eventually(q.Delay).Should(Equal(time.Millisecond))
	})

	It("should requeue on other errors without touching the delay", func() {
		transport.failures["A"] = []error{errors.New("bad gateway"), errors.New("bad gateway")}
		q := notify.NewQueue(transport, opts, logger)
		q.Enqueue("A")
		q.Enqueue("B")
		go q.Run(ctx)

		Eventually(transport.Delivered).Should(Equal([]string{"A", "B"}))
		Expect(transport.Attempts()).To(Equal([]string{"A", "A", "A", "B"}))
		Expect(q.Delay()).To(Equal(time.Millisecond))
	})

	It("should accept messages from many producers", func() {
		q := notify.NewQueue(transport, opts, logger)
		go q.Run(ctx)

		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				q.Enqueue("msg")
			}()
		}
		wg.Wait()

		Eventually(func() int { return len(transport.Delivered()) }).Should(Equal(20))
	})

	It("should stop when the context is cancelled", func() {
		q := notify.NewQueue(transport, opts, logger)
		done := make(chan struct{})
		go func() {
			q.Run(ctx)
			close(done)
		}()

		cancel()
		Eventually(done).Should(BeClosed())
	})
})
