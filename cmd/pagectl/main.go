// Package main provides pagectl, a command line client for the custom
// domain endpoints of a pagehost server.
//
// Usage:
//
//	pagectl [-config file] <command> [args...]
//
// Commands:
//
//	version                          - Show pagectl version
//	add <page-id> <slug> <domain>    - Connect a domain to a page and verify it
//	remove <page-id> <domain>        - Disconnect a domain from a page
//	status <domain>                  - Show verification status (cached)
//	refresh <domain>                 - Re-check verification status
//
// Every command prints a JSON document on stdout and exits 1 when any step
// failed.
//
// Requests authenticate with PAGECTL_TOKEN. An operator holding the server's
// session secret can instead set PAGECTL_SESSION_SECRET and PAGECTL_USER_ID
// to act for that user with a short-lived token signed locally.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/artpar/pagehost/internal/shell/api/middleware"
	"github.com/artpar/pagehost/internal/shell/domainclient"
	"github.com/spf13/viper"
)

// Version information (set by build flags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Exit codes.
const (
	ExitSuccess     = 0
	ExitStepFailed  = 1
	ExitUsage       = 2
	ExitConfigError = 3
)

// Config holds pagectl settings.
type Config struct {
	domainclient.Config `mapstructure:",squash"`

	CacheFile string `mapstructure:"cache_file"`
	LogLevel  string `mapstructure:"log_level"`

	SessionSecret string `mapstructure:"session_secret"`
	SessionIssuer string `mapstructure:"session_issuer"`
	UserID        string `mapstructure:"user_id"`
}

// operatorTokenTTL bounds locally signed tokens to a single invocation.
const operatorTokenTTL = 10 * time.Minute

// resolveToken signs an operator token when no token is configured but a
// session secret is.
func (c *Config) resolveToken() error {
	if c.Token != "" || c.SessionSecret == "" {
		return nil
	}
	if c.UserID == "" {
		return fmt.Errorf("user_id is required with session_secret (PAGECTL_USER_ID)")
	}
	token, err := middleware.SignSession([]byte(c.SessionSecret), c.SessionIssuer, c.UserID, "pagectl", operatorTokenTTL)
	if err != nil {
		return fmt.Errorf("failed to sign session: %w", err)
	}
	c.Token = token
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pagectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(argv); err != nil {
		return ExitUsage
	}
	args := fs.Args()
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: pagectl [-config file] <command> [args...]")
		return ExitUsage
	}

	if args[0] == "version" {
		fmt.Fprintf(stdout, "pagectl %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}
	if cfg.BaseURL == "" {
		fmt.Fprintln(stderr, "configuration error: base_url is required (PAGECTL_BASE_URL)")
		return ExitConfigError
	}
	if err := cfg.resolveToken(); err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	cache, err := domainclient.OpenFileCache(cfg.CacheFile)
	if err != nil {
		fmt.Fprintf(stderr, "cache error: %v\n", err)
		return ExitConfigError
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	client := domainclient.New(cfg.Config, cache, logger)

	return dispatch(context.Background(), client, args[0], args[1:], stdout, stderr)
}

// LoadConfig reads settings from an optional file and PAGECTL_ variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("token", "")
	v.SetDefault("freshness", domainclient.DefaultFreshness.String())
	v.SetDefault("timeout", "30s")
	v.SetDefault("cache_file", defaultCacheFile())
	v.SetDefault("log_level", "warn")
	v.SetDefault("session_secret", "")
	v.SetDefault("session_issuer", "")
	v.SetDefault("user_id", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("PAGECTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &cfg, nil
}

func defaultCacheFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".pagectl-cache.yaml"
	}
	return filepath.Join(dir, "pagectl", "domains.yaml")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
