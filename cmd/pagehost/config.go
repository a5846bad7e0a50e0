package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/artpar/pagehost/internal/core/dns"
	"github.com/artpar/pagehost/internal/core/edge"
	"github.com/artpar/pagehost/internal/shell/api/middleware"
	"github.com/artpar/pagehost/internal/shell/blob"
	"github.com/artpar/pagehost/internal/shell/registrar"
	"github.com/artpar/pagehost/internal/shell/routing"
	"github.com/artpar/pagehost/internal/shell/workers"
	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig               `mapstructure:"server"`
	Database   DatabaseConfig             `mapstructure:"database"`
	Log        LogConfig                  `mapstructure:"log"`
	Pages      PagesConfig                `mapstructure:"pages"`
	Redis      routing.Config             `mapstructure:"redis"`
	Registrar  RegistrarConfig            `mapstructure:"registrar"`
	Auth       AuthConfig                 `mapstructure:"auth"`
	Revalidate RevalidateConfig           `mapstructure:"revalidate"`
	Blob       blob.Config                `mapstructure:"blob"`
	Reconciler workers.ReconcilerConfig   `mapstructure:"reconciler"`
	RateLimit  middleware.RateLimitConfig `mapstructure:"ratelimit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PagesConfig describes where tenant pages and the dashboard live.
type PagesConfig struct {
	AppHost           string   `mapstructure:"app_host"`
	BaseHost          string   `mapstructure:"base_host"`
	PreviewHosts      []string `mapstructure:"preview_hosts"`
	ProtectedPrefixes []string `mapstructure:"protected_prefixes"`
	ReservedLabel     string   `mapstructure:"reserved_label"`
	SignInURL         string   `mapstructure:"sign_in_url"`

	// StrictDomainOwnership refuses to move a domain that already routes
	// to another page.
	StrictDomainOwnership bool          `mapstructure:"strict_domain_ownership"`
	StepTimeout           time.Duration `mapstructure:"step_timeout"`
}

// EdgeRules converts the config into routing rules.
func (c PagesConfig) EdgeRules() edge.Rules {
	return edge.Rules{
		AppHost:           c.AppHost,
		PagesBaseHost:     c.BaseHost,
		PreviewHosts:      c.PreviewHosts,
		ProtectedPrefixes: c.ProtectedPrefixes,
		ReservedLabel:     c.ReservedLabel,
	}
}

// RegistrarConfig holds the hosting provider API settings and the DNS
// targets shown to users.
type RegistrarConfig struct {
	registrar.Config `mapstructure:",squash"`

	ATarget     string `mapstructure:"a_target"`
	CNAMETarget string `mapstructure:"cname_target"`
}

// Targets returns the DNS targets, falling back to the provider defaults.
func (c RegistrarConfig) Targets() dns.Targets {
	t := dns.DefaultTargets()
	if c.ATarget != "" {
		t.A = c.ATarget
	}
	if c.CNAMETarget != "" {
		t.CNAME = c.CNAMETarget
	}
	return t
}

// AuthConfig holds session token verification settings.
type AuthConfig struct {
	// SessionSecret is the HS256 key session tokens are signed with.
	// Empty leaves every request anonymous.
	SessionSecret string `mapstructure:"session_secret"`
	Issuer        string `mapstructure:"issuer"`
	CookieName    string `mapstructure:"cookie_name"`
}

// RevalidateConfig holds the page cache settings.
type RevalidateConfig struct {
	Secret    string `mapstructure:"secret"`
	CacheSize int    `mapstructure:"cache_size"`
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Redis.Address == "" {
		errs = append(errs, errors.New("redis.address is required"))
	}
	if c.Pages.AppHost == "" {
		errs = append(errs, errors.New("pages.app_host is required"))
	}
	if c.Revalidate.CacheSize < 0 {
		errs = append(errs, errors.New("revalidate.cache_size must not be negative"))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("ratelimit values must not be negative"))
	}
	return errors.Join(errs...)
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", "./data/pagehost.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("pages.app_host", "app.localhost")
	v.SetDefault("pages.base_host", "pages.localhost")
	v.SetDefault("pages.preview_hosts", []string{})
	v.SetDefault("pages.protected_prefixes", edge.DefaultProtectedPrefixes)
	v.SetDefault("pages.reserved_label", "www")
	v.SetDefault("pages.sign_in_url", "/sign-in")
	v.SetDefault("pages.strict_domain_ownership", false)
	v.SetDefault("pages.step_timeout", "10s")

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", "3s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	v.SetDefault("registrar.base_url", registrar.DefaultBaseURL)
	v.SetDefault("registrar.token", "")
	v.SetDefault("registrar.project_id", "")
	v.SetDefault("registrar.team_id", "")
	v.SetDefault("registrar.timeout", "10s")
	v.SetDefault("registrar.a_target", dns.DefaultApexTarget)
	v.SetDefault("registrar.cname_target", dns.DefaultCNAMETarget)

	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.cookie_name", "__session")

	v.SetDefault("revalidate.secret", "")
	v.SetDefault("revalidate.cache_size", 512)

	// Blob storage stays off until a bucket is named.
	v.SetDefault("blob.bucket", "")
	v.SetDefault("blob.region", "us-east-1")
	v.SetDefault("blob.endpoint", "")
	v.SetDefault("blob.access_key_id", "")
	v.SetDefault("blob.secret_access_key", "")
	v.SetDefault("blob.use_path_style", false)
	v.SetDefault("blob.presign_ttl", "15m")

	v.SetDefault("reconciler.enabled", true)
	v.SetDefault("reconciler.interval", "5m")
	v.SetDefault("reconciler.initial_delay", "30s")
	v.SetDefault("reconciler.max_concurrent", 4)
	v.SetDefault("reconciler.cycle_timeout", "2m")

	v.SetDefault("ratelimit.rps", 5)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("ratelimit.trust_forwarded", false)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// A missing file falls back to defaults; a broken one is fatal.
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("PAGEHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
