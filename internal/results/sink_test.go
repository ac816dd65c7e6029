package results_test

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/uptime-monitor/internal/checker"
	"github.com/angeloszaimis/uptime-monitor/internal/results"
)

var _ = Describe("SQLiteSink", func() {
	var (
		ctx  context.Context
		sink *results.SQLiteSink
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		sink, err = results.NewSQLiteSink(ctx, filepath.Join(GinkgoT().TempDir(), "uptime.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(sink.Close()).To(Succeed())
	})

	It("should store results and return them newest first", func() {
		base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		Expect(sink.Record(ctx, checker.Result{
			URL: "https://a.test", Status: 200, ResponseTime: 250 * time.Millisecond, CheckedAt: base,
		})).To(Succeed())
		Expect(sink.Record(ctx, checker.Result{
			URL: "https://a.test", Status: checker.StatusException, CheckedAt: base.Add(time.Minute), Error: "timeout",
		})).To(Succeed())
		Expect(sink.Record(ctx, checker.Result{
			URL: "https://b.test", Status: 503, CheckedAt: base,
		})).To(Succeed())

		rows, err := sink.History(ctx, "https://a.test", 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(2))
		Expect(rows[0].Status).To(Equal("Exception"))
		Expect(rows[0].Error).To(Equal("timeout"))
		Expect(rows[1].Status).To(Equal("200"))
		Expect(rows[1].ResponseTime).To(BeNumerically("~", 0.25, 0.001))
		Expect(rows[1].CheckedAt).To(BeTemporally("==", base))
		Expect(rows[0].ID).NotTo(Equal(rows[1].ID))
	})

	It("should honour the history limit", func() {
		for i := range 5 {
			Expect(sink.Record(ctx, checker.Result{
				URL: "https://a.test", Status: 200, CheckedAt: time.Now().Add(time.Duration(i) * time.Second),
			})).To(Succeed())
		}
		rows, err := sink.History(ctx, "https://a.test", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(3))
	})
})
