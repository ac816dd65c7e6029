package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	SitesDriverStatic = "static"
	SitesDriverMySQL  = "mysql"

	StateBackendFile  = "file"
	StateBackendRedis = "redis"

	NotifyDriverTelegram = "telegram"
	NotifyDriverLog      = "log"
)

type ServerConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// MonitorConfig drives the check cycle and the recovery loops.
type MonitorConfig struct {
	Interval        string `mapstructure:"interval"`
	Timeout         string `mapstructure:"timeout"`
	Retries         int    `mapstructure:"retries"`
	RetryDelay      string `mapstructure:"retry_delay"`
	RetryBackoff    string `mapstructure:"retry_backoff"`
	RecoveryDelay   string `mapstructure:"recovery_delay"`
	RecoveryBackoff string `mapstructure:"recovery_backoff"`
	PoolSize        int    `mapstructure:"pool_size"`
	LimitPerHost    int    `mapstructure:"limit_per_host"`
	LimitPerIP      int    `mapstructure:"limit_per_ip"`
}

type ProxyConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	CandidatesFile string `mapstructure:"candidates_file"`
	StateBackend   string `mapstructure:"state_backend"`
	StateFile      string `mapstructure:"state_file"`
	RedisAddr      string `mapstructure:"redis_addr"`
	RedisKey       string `mapstructure:"redis_key"`
	ProbeURL       string `mapstructure:"probe_url"`
	ProbeTimeout   string `mapstructure:"probe_timeout"`
	CheckInterval  string `mapstructure:"check_interval"`
	SweepSchedule  string `mapstructure:"sweep_schedule"`
}

type SitesConfig struct {
	Driver     string   `mapstructure:"driver"`
	Static     []string `mapstructure:"static"`
	DSN        string   `mapstructure:"dsn"`
	BackupFile string   `mapstructure:"backup_file"`
	Scheme     string   `mapstructure:"scheme"`
}

type ResultsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type NotifyConfig struct {
	Driver      string `mapstructure:"driver"`
	Token       string `mapstructure:"token"`
	ChatID      string `mapstructure:"chat_id"`
	APIURL      string `mapstructure:"api_url"`
	BaseDelay   string `mapstructure:"base_delay"`
	RetryMargin string `mapstructure:"retry_margin"`
}

type ResolverConfig struct {
	CacheSize  int    `mapstructure:"cache_size"`
	CacheTTL   string `mapstructure:"cache_ttl"`
	RetryDelay string `mapstructure:"retry_delay"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Sites    SitesConfig    `mapstructure:"sites"`
	Results  ResultsConfig  `mapstructure:"results"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Resolver ResolverConfig `mapstructure:"resolver"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8090")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.file", "")

	v.SetDefault("monitor.interval", "800s")
	v.SetDefault("monitor.timeout", "10s")
	v.SetDefault("monitor.retries", 3)
	v.SetDefault("monitor.retry_delay", "35s")
	v.SetDefault("monitor.retry_backoff", "0s")
	v.SetDefault("monitor.recovery_delay", "80s")
	v.SetDefault("monitor.recovery_backoff", "35s")
	v.SetDefault("monitor.pool_size", 50)
	v.SetDefault("monitor.limit_per_host", 1)
	v.SetDefault("monitor.limit_per_ip", 1)

	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.candidates_file", "all_proxies.json")
	v.SetDefault("proxy.state_backend", StateBackendFile)
	v.SetDefault("proxy.state_file", "checked_proxies.json")
	v.SetDefault("proxy.redis_addr", "localhost:6379")
	v.SetDefault("proxy.redis_key", "uptime:proxies")
	v.SetDefault("proxy.probe_url", "http://httpbin.org/ip")
	v.SetDefault("proxy.probe_timeout", "10s")
	v.SetDefault("proxy.check_interval", "24h")
	v.SetDefault("proxy.sweep_schedule", "@every 1h")

	v.SetDefault("sites.driver", SitesDriverStatic)
	v.SetDefault("sites.dsn", "")
	v.SetDefault("sites.static", []string{})
	v.SetDefault("sites.backup_file", "backup_sites.json")
	v.SetDefault("sites.scheme", "https")

	v.SetDefault("results.enabled", false)
	v.SetDefault("results.sqlite_path", "uptime.db")

	v.SetDefault("notify.driver", NotifyDriverLog)
	v.SetDefault("notify.token", "")
	v.SetDefault("notify.chat_id", "")
	v.SetDefault("notify.api_url", "https://api.telegram.org")
	v.SetDefault("notify.base_delay", "1s")
	v.SetDefault("notify.retry_margin", "2s")

	v.SetDefault("resolver.cache_size", 1024)
	v.SetDefault("resolver.cache_ttl", "5m")
	v.SetDefault("resolver.retry_delay", "1s")
}

func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.When(sc.Enabled, validation.Required, validation.By(validateHostPort)),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Monitor,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MonitorConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MonitorConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.Interval, validation.Required, validation.By(validateDuration)),
					validation.Field(&mc.Timeout, validation.Required, validation.By(validateDuration)),
					validation.Field(&mc.RetryDelay, validation.Required, validation.By(validateDuration)),
					validation.Field(&mc.RetryBackoff, validation.By(validateDuration)),
					validation.Field(&mc.RecoveryDelay, validation.Required, validation.By(validateDuration)),
					validation.Field(&mc.RecoveryBackoff, validation.By(validateDuration)),
					validation.Field(&mc.Retries, validation.Required, validation.Min(1)),
					validation.Field(&mc.PoolSize, validation.Required, validation.Min(1)),
					validation.Field(&mc.LimitPerHost, validation.Required, validation.Min(1)),
					validation.Field(&mc.LimitPerIP, validation.Required, validation.Min(1)),
				)
			}),
		),
		validation.Field(&c.Proxy,
			validation.By(func(value interface{}) error {
				pc, ok := value.(ProxyConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ProxyConfig")
				}
				if !pc.Enabled {
					return nil
				}
				return validation.ValidateStruct(&pc,
					validation.Field(&pc.CandidatesFile, validation.Required),
					validation.Field(&pc.StateBackend,
						validation.Required,
						validation.In(StateBackendFile, StateBackendRedis),
					),
					validation.Field(&pc.StateFile,
						validation.When(pc.StateBackend == StateBackendFile, validation.Required),
					),
					validation.Field(&pc.RedisAddr,
						validation.When(pc.StateBackend == StateBackendRedis, validation.Required, validation.By(validateHostPort)),
					),
					validation.Field(&pc.ProbeURL, validation.Required, validation.By(validateServerURL)),
					validation.Field(&pc.ProbeTimeout, validation.Required, validation.By(validateDuration)),
					validation.Field(&pc.CheckInterval, validation.Required, validation.By(validateDuration)),
					validation.Field(&pc.SweepSchedule, validation.Required),
				)
			}),
		),
		validation.Field(&c.Sites,
			validation.By(func(value interface{}) error {
				sc, ok := value.(SitesConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a SitesConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Driver,
						validation.Required,
						validation.In(SitesDriverStatic, SitesDriverMySQL),
					),
					validation.Field(&sc.Static,
						validation.When(sc.Driver == SitesDriverStatic, validation.Required),
						validation.Each(validation.By(validateServerURL)),
					),
					validation.Field(&sc.DSN,
						validation.When(sc.Driver == SitesDriverMySQL, validation.Required),
					),
					validation.Field(&sc.Scheme, validation.Required, validation.In("http", "https")),
				)
			}),
		),
		validation.Field(&c.Results,
			validation.By(func(value interface{}) error {
				rc, ok := value.(ResultsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ResultsConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.SQLitePath, validation.When(rc.Enabled, validation.Required)),
				)
			}),
		),
		validation.Field(&c.Notify,
			validation.By(func(value interface{}) error {
				nc, ok := value.(NotifyConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a NotifyConfig")
				}
				telegram := nc.Driver == NotifyDriverTelegram
				return validation.ValidateStruct(&nc,
					validation.Field(&nc.Driver,
						validation.Required,
						validation.In(NotifyDriverTelegram, NotifyDriverLog),
					),
					validation.Field(&nc.Token, validation.When(telegram, validation.Required)),
					validation.Field(&nc.ChatID, validation.When(telegram, validation.Required)),
					validation.Field(&nc.APIURL, validation.When(telegram, validation.Required, validation.By(validateServerURL))),
					validation.Field(&nc.BaseDelay, validation.Required, validation.By(validateDuration)),
					validation.Field(&nc.RetryMargin, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.Resolver,
			validation.By(func(value interface{}) error {
				rc, ok := value.(ResolverConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ResolverConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.CacheSize, validation.Min(0)),
					validation.Field(&rc.CacheTTL, validation.Required, validation.By(validateDuration)),
					validation.Field(&rc.RetryDelay, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
	)
}

// Duration parses a duration field that already passed Validate.
func Duration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if durationStr == "" {
		return nil
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return nil
}

func validateServerURL(value interface{}) error {
	serverURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if serverURL == "" {
		return validation.NewError("validation_empty_url", "URL cannot be empty")
	}

	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}
