package sites_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/uptime-monitor/internal/circuitbreaker"
	"github.com/angeloszaimis/uptime-monitor/internal/sites"
)

type fakeRepo struct {
	names   []string
	enabled map[string]bool
	err     error
}

func (f *fakeRepo) EnabledNames(context.Context) ([]string, error) {
	return f.names, f.err
}

func (f *fakeRepo) IsEnabled(_ context.Context, name string) (bool, error) {
	return f.enabled[name], f.err
}

var _ = Describe("Static", func() {
	ctx := context.Background()

	It("should serve a copy of the configured list", func() {
		s := sites.NewStatic([]string{"https://a.test"})
		urls, err := s.Sites(ctx)
		Expect(err).NotTo(HaveOccurred())
		urls[0] = "mutated"

		again, _ := s.Sites(ctx)
		Expect(again).To(Equal([]string{"https://a.test"}))
	})

	It("should fail without any sites", func() {
		_, err := sites.NewStatic(nil).Sites(ctx)
		Expect(err).To(MatchError(sites.ErrNoSites))
	})

	It("should report only listed URLs as enabled", func() {
		s := sites.NewStatic([]string{"https://a.test"})
		Expect(s.IsEnabled(ctx, "https://a.test")).To(BeTrue())
		Expect(s.IsEnabled(ctx, "https://b.test")).To(BeFalse())
	})
})

var _ = Describe("DBSource", func() {
	var (
		ctx    context.Context
		logger *slog.Logger
		backup *sites.Backup
		path   string
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		path = filepath.Join(GinkgoT().TempDir(), "backup_sites.json")
		backup = sites.NewBackup(path)
	})

	connectTo := func(repo sites.Repository) sites.ConnectFunc {
		return func(context.Context) (sites.Repository, error) { return repo, nil }
	}

	It("should prefix names with the scheme and write a backup", func() {
		repo := &fakeRepo{names: []string{"a.test", " ", "b.test/shop"}}
		src := sites.NewDBSource(connectTo(repo), backup, "https", logger)

		urls, err := src.Sites(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(urls).To(Equal([]string{"https://a.test", "https://b.test/shop"}))
		Expect(backup.Load()).To(Equal(urls))
	})

	It("should serve the backup when the database fails", func() {
		Expect(backup.Save([]string{"https://cached.test"})).To(Succeed())
		src := sites.NewDBSource(func(context.Context) (sites.Repository, error) {
			return nil, errors.New("connection refused")
		}, backup, "https", logger)

		Expect(src.Sites(ctx)).To(Equal([]string{"https://cached.test"}))
	})

	It("should fail when neither database nor backup is available", func() {
		src := sites.NewDBSource(func(context.Context) (sites.Repository, error) {
			return nil, errors.New("connection refused")
		}, backup, "https", logger)

		_, err := src.Sites(ctx)
		Expect(err).To(MatchError(sites.ErrNoSites))
		Expect(err).To(MatchError(ContainSubstring("connection refused")))
	})

	It("should reconnect after a failed query", func() {
		var connects atomic.Int32
		repo := &fakeRepo{err: errors.New("gone away")}
		src := sites.NewDBSource(func(context.Context) (sites.Repository, error) {
			connects.Add(1)
			return repo, nil
		}, backup, "https", logger)

		_, _ = src.Sites(ctx)
		repo.err = nil
		repo.names = []string{"a.test"}
		Expect(src.Sites(ctx)).To(Equal([]string{"https://a.test"}))
		Expect(connects.Load()).To(Equal(int32(2)))
	})

	It("should look up enablement by site name", func() {
		repo := &fakeRepo{enabled: map[string]bool{"a.test": true}}
		src := sites.NewDBSource(connectTo(repo), backup, "https", logger)

		Expect(src.IsEnabled(ctx, "https://a.test")).To(BeTrue())
		Expect(src.IsEnabled(ctx, "https://b.test")).To(BeFalse())
	})

	It("should answer enablement from the backup while the database is down", func() {
		Expect(backup.Save([]string{"https://a.test"})).To(Succeed())
		src := sites.NewDBSource(connectTo(&fakeRepo{err: errors.New("gone away")}), backup, "https", logger)

		Expect(src.IsEnabled(ctx, "https://a.test")).To(BeTrue())
		Expect(src.IsEnabled(ctx, "https://b.test")).To(BeFalse())
	})

	It("should return an error when enablement cannot be answered at all", func() {
		src := sites.NewDBSource(connectTo(&fakeRepo{err: errors.New("gone away")}), backup, "https", logger)
		_, err := src.IsEnabled(ctx, "https://a.test")
		Expect(err).To(MatchError(ContainSubstring("gone away")))
	})
})

var _ = Describe("Backup", func() {
	It("should report a missing file as no sites", func() {
		b := sites.NewBackup(filepath.Join(GinkgoT().TempDir(), "missing.json"))
		_, err := b.Load()
		Expect(err).To(MatchError(sites.ErrNoSites))
	})

	It("should reject a corrupt file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "bad.json")
		Expect(os.WriteFile(path, []byte("{"), 0o644)).To(Succeed())
		_, err := sites.NewBackup(path).Load()
		Expect(err).To(HaveOccurred())
		Expect(err).NotTo(MatchError(sites.ErrNoSites))
	})
})

var _ = Describe("DBSource with a breaker", func() {
	It("should stop connecting while the breaker is open", func() {
		ctx := context.Background()
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		backup := sites.NewBackup(filepath.Join(GinkgoT().TempDir(), "backup.json"))
		Expect(backup.Save([]string{"https://cached.test"})).To(Succeed())

		var connects atomic.Int32
		src := sites.NewDBSource(func(context.Context) (sites.Repository, error) {
			connects.Add(1)
			return nil, errors.New("connection refused")
		}, backup, "https", logger).WithBreaker(circuitbreaker.NewCircuitBreaker(2, time.Hour))

		for range 5 {
			Expect(src.Sites(ctx)).To(Equal([]string{"https://cached.test"}))
		}
		Expect(src.IsEnabled(ctx, "https://cached.test")).To(BeTrue())
		Expect(connects.Load()).To(Equal(int32(2)))
	})
})
