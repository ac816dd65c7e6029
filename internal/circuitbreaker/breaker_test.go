package circuitbreaker_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/uptime-monitor/internal/circuitbreaker"
)

var _ = Describe("CircuitBreaker", func() {
	var (
		cb  *circuitbreaker.CircuitBreaker
		now time.Time
	)

	clock := func() time.Time { return now }

	trip := func() {
		cb.RecordFailure()
		cb.RecordFailure()
		cb.RecordFailure()
		Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
	}

	BeforeEach(func() {
		now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		cb = circuitbreaker.NewCircuitBreaker(3, time.Minute).WithClock(clock)
	})

	Context("when in CLOSED state", func() {
		It("should allow calls", func() {
			Expect(cb.Allow()).To(BeTrue())
		})

		It("should remain closed after failures below threshold", func() {
			cb.RecordFailure()
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.Allow()).To(BeTrue())
		})

		It("should open after reaching failure threshold", func() {
			trip()
		})
	})

	Context("when in OPEN state", func() {
		BeforeEach(trip)

		It("should refuse calls before the reset timeout", func() {
			now = now.Add(30 * time.Second)
			Expect(cb.Allow()).To(BeFalse())
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})

		It("should admit a single trial call after the reset timeout", func() {
			now = now.Add(time.Minute)
			Expect(cb.Allow()).To(BeTrue())
			Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
			Expect(cb.Allow()).To(BeFalse())
		})
	})

	Context("when in HALF-OPEN state", func() {
		BeforeEach(func() {
			trip()
			now = now.Add(time.Minute)
			Expect(cb.Allow()).To(BeTrue())
		})

		It("should close on success", func() {
			cb.RecordSuccess()
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.Allow()).To(BeTrue())
		})

		It("should reopen on failure", func() {
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			Expect(cb.Allow()).To(BeFalse())
		})
	})

	Describe("Do", func() {
		It("should record outcomes and refuse calls once open", func() {
			boom := errors.New("connection refused")
			for range 3 {
				Expect(cb.Do(func() error { return boom })).To(MatchError(boom))
			}

			calls := 0
			err := cb.Do(func() error { calls++; return nil })
			Expect(err).To(MatchError(circuitbreaker.ErrOpen))
			Expect(calls).To(BeZero())

			now = now.Add(time.Minute)
			Expect(cb.Do(func() error { calls++; return nil })).To(Succeed())
			Expect(calls).To(Equal(1))
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Describe("RecordSuccess", func() {
		It("should reset failure count", func() {
			cb.RecordFailure()
			cb.RecordFailure()
			cb.RecordSuccess()
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Describe("State", func() {
		It("should return correct string representation", func() {
			Expect(circuitbreaker.StateClosed.String()).To(Equal("CLOSED"))
			Expect(circuitbreaker.StateOpen.String()).To(Equal("OPEN"))
			Expect(circuitbreaker.StateHalfOpen.String()).To(Equal("HALF-OPEN"))
			Expect(circuitbreaker.State(42).String()).To(Equal("UNKNOWN"))
		})

		It("should marshal as text", func() {
			b, err := circuitbreaker.StateOpen.MarshalText()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(b)).To(Equal("OPEN"))
		})
	})
})
