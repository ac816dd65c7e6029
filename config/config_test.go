package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/uptime-monitor/config"
)

var _ = Describe("Config", func() {
	var (
		tempDir string
		origDir string
	)

	BeforeEach(func() {
		var err error
		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		tempDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tempDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tempDir)
		os.Unsetenv("SITES_STATIC")
		os.Unsetenv("MONITOR_RETRIES")
	})

	Describe("Load", func() {
		Context("with valid config file", func() {
			BeforeEach(func() {
				configContent := `
server:
  environment: "prod"

monitor:
  interval: "60s"
  retries: 5
  limit_per_ip: 2

sites:
  driver: "static"
  static:
    - "https://a.test"
    - "https://b.test"

notify:
  driver: "telegram"
  token: "123:abc"
  chat_id: "-100"

logging:
  level: "debug"
`
				err := os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(configContent), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load configuration successfully", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg).NotTo(BeNil())
			})

			It("should parse monitor settings and keep defaults for the rest", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Monitor.Interval).To(Equal("60s"))
				Expect(cfg.Monitor.Retries).To(Equal(5))
				Expect(cfg.Monitor.LimitPerIP).To(Equal(2))
				Expect(cfg.Monitor.Timeout).To(Equal("10s"))
				Expect(cfg.Notify.APIURL).To(Equal("https://api.telegram.org"))
			})

			It("should parse the static site list", func() {
				cfg, _ := config.Load()
				Expect(cfg.Sites.Static).To(ConsistOf("https://a.test", "https://b.test"))
			})
		})

		Context("with environment variables", func() {
			It("should use defaults when config file missing", func() {
				os.Setenv("SITES_STATIC", "https://a.test")
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Monitor.Retries).To(Equal(3))
				Expect(cfg.Proxy.ProbeURL).To(Equal("http://httpbin.org/ip"))
				Expect(config.Duration(cfg.Monitor.RetryBackoff)).To(BeZero())
			})

			It("should let the environment override defaults", func() {
				os.Setenv("SITES_STATIC", "https://a.test")
				os.Setenv("MONITOR_RETRIES", "7")
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Monitor.Retries).To(Equal(7))
			})

			It("should fail validation without any sites", func() {
				_, err := config.Load()
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Validate", func() {
		var cfg *config.Config

		BeforeEach(func() {
			cfg = &config.Config{
				Server:  config.ServerConfig{Environment: config.EnvDev},
				Logging: config.LoggingConfig{Level: config.LogLevelInfo},
				Monitor: config.MonitorConfig{
					Interval: "1m", Timeout: "5s", Retries: 3, RetryDelay: "1s",
					RecoveryDelay: "10s", PoolSize: 10, LimitPerHost: 1, LimitPerIP: 1,
				},
				Sites:    config.SitesConfig{Driver: config.SitesDriverStatic, Static: []string{"https://a.test"}, Scheme: "https"},
				Notify:   config.NotifyConfig{Driver: config.NotifyDriverLog, BaseDelay: "1s", RetryMargin: "2s"},
				Resolver: config.ResolverConfig{CacheTTL: "1m", RetryDelay: "1s"},
			}
		})

		It("should accept a minimal configuration", func() {
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should reject invalid durations", func() {
			cfg.Monitor.Interval = "soon"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject an invalid retry backoff", func() {
			cfg.Monitor.RetryBackoff = "later"
			Expect(cfg.Validate()).NotTo(Succeed())
			cfg.Monitor.RetryBackoff = "5s"
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should reject zero retries", func() {
			cfg.Monitor.Retries = 0
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should require a DSN for the mysql driver", func() {
			cfg.Sites.Driver = config.SitesDriverMySQL
			Expect(cfg.Validate()).NotTo(Succeed())
			cfg.Sites.DSN = "user:pass@tcp(localhost:3306)/sites"
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should require credentials for telegram", func() {
			cfg.Notify.Driver = config.NotifyDriverTelegram
			cfg.Notify.APIURL = "https://api.telegram.org"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should validate proxy settings only when enabled", func() {
			cfg.Proxy.ProbeURL = "not a url"
			Expect(cfg.Validate()).To(Succeed())
			cfg.Proxy.Enabled = true
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject site URLs without http scheme", func() {
			cfg.Sites.Static = []string{"ftp://a.test"}
			Expect(cfg.Validate()).NotTo(Succeed())
		})
	})

	Describe("Duration", func() {
		It("should parse valid durations and zero invalid ones", func() {
			Expect(config.Duration("1m30s")).To(Equal(90 * time.Second))
			Expect(config.Duration("bogus")).To(BeZero())
		})
	})
})
