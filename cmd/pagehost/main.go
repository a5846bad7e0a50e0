// Command pagehost serves the landing-page builder: the page and domain
// APIs, published pages on tenant hosts and the routing reconciler.
//
// Usage:
//
//	pagehost -config pagehost.yaml
//	pagehost -config pagehost.yaml -check-config
//
// -check-config loads and validates the configuration, prints the
// effective values with secrets masked and exits without connecting to
// SQLite, Redis or the hosting provider.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const masked = "********"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pagehost", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	showVersion := fs.Bool("version", false, "Print version and exit")
	checkConfig := fs.Bool("check-config", false, "Validate the config, print it with secrets masked and exit")
	if err := fs.Parse(args); err != nil {
		return ExitConfigError
	}

	if *showVersion {
		fmt.Fprintf(stdout, "pagehost %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	cfg, err := LoadConfig(*configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	if *checkConfig {
		out, err := yaml.Marshal(cfg.Effective())
		if err != nil {
			fmt.Fprintf(stderr, "configuration error: %v\n", err)
			return ExitConfigError
		}
		_, _ = stdout.Write(out)
		return ExitSuccess
	}

	logger := SetupLogger(cfg)
	logStartup(logger, cfg, *configPath)

	server, err := NewServer(cfg, logger)
	if err != nil {
		return fail(logger, "failed to create server", err)
	}
	if err := server.Start(context.Background()); err != nil {
		return fail(logger, "server error", err)
	}
	return ExitSuccess
}

// logStartup records which hosts this process answers for and which
// optional parts are switched on.
func logStartup(logger *slog.Logger, cfg *Config, configPath string) {
	logger.Info("starting pagehost",
		"version", Version,
		"config", configPath,
		"address", cfg.Server.Address(),
		"app_host", cfg.Pages.AppHost,
		"base_host", cfg.Pages.BaseHost,
	)
	logger.Info("components",
		"auth", cfg.Auth.SessionSecret != "",
		"registrar", cfg.Registrar.Token != "",
		"blob", cfg.Blob.Bucket != "",
		"reconciler", cfg.Reconciler.Enabled,
		"reconcile_interval", cfg.Reconciler.Interval,
		"strict_ownership", cfg.Pages.StrictDomainOwnership,
	)
}

func fail(logger *slog.Logger, msg string, err error) int {
	var sErr *ServerError
	if errors.As(err, &sErr) {
		logger.Error(msg, "error", sErr.Err, "operation", sErr.Op)
	} else {
		logger.Error(msg, "error", err)
	}
	return exitCode(err)
}

// exitCode maps a startup failure to the process exit status. Errors that
// did not come from a named startup step count as configuration errors.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var sErr *ServerError
	if errors.As(err, &sErr) && sErr.ExitCode != ExitSuccess {
		return sErr.ExitCode
	}
	return ExitConfigError
}

// Effective returns the configuration as config-file keys with every
// credential replaced by a mask. Unset credentials stay empty so the
// output shows what is missing.
func (c *Config) Effective() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"host":             c.Server.Host,
			"port":             c.Server.Port,
			"read_timeout":     c.Server.ReadTimeout.String(),
			"write_timeout":    c.Server.WriteTimeout.String(),
			"shutdown_timeout": c.Server.ShutdownTimeout.String(),
		},
		"database": map[string]any{"dsn": c.Database.DSN},
		"log":      map[string]any{"level": c.Log.Level, "format": c.Log.Format},
		"pages": map[string]any{
			"app_host":                c.Pages.AppHost,
			"base_host":               c.Pages.BaseHost,
			"preview_hosts":           c.Pages.PreviewHosts,
			"protected_prefixes":      c.Pages.ProtectedPrefixes,
			"reserved_label":          c.Pages.ReservedLabel,
			"sign_in_url":             c.Pages.SignInURL,
			"strict_domain_ownership": c.Pages.StrictDomainOwnership,
			"step_timeout":            c.Pages.StepTimeout.String(),
		},
		"redis": map[string]any{
			"address":  c.Redis.Address,
			"password": mask(c.Redis.Password),
			"db":       c.Redis.DB,
		},
		"registrar": map[string]any{
			"base_url":     c.Registrar.BaseURL,
			"token":        mask(c.Registrar.Token),
			"project_id":   c.Registrar.ProjectID,
			"team_id":      c.Registrar.TeamID,
			"a_target":     c.Registrar.Targets().A,
			"cname_target": c.Registrar.Targets().CNAME,
		},
		"auth": map[string]any{
			"session_secret": mask(c.Auth.SessionSecret),
			"issuer":         c.Auth.Issuer,
			"cookie_name":    c.Auth.CookieName,
		},
		"revalidate": map[string]any{
			"secret":     mask(c.Revalidate.Secret),
			"cache_size": c.Revalidate.CacheSize,
		},
		"blob": map[string]any{
			"bucket":            c.Blob.Bucket,
			"region":            c.Blob.Region,
			"endpoint":          c.Blob.Endpoint,
			"access_key_id":     c.Blob.AccessKeyID,
			"secret_access_key": mask(c.Blob.SecretAccessKey),
		},
		"reconciler": map[string]any{
			"enabled":        c.Reconciler.Enabled,
			"interval":       c.Reconciler.Interval.String(),
			"initial_delay":  c.Reconciler.InitialDelay.String(),
			"max_concurrent": c.Reconciler.MaxConcurrent,
			"cycle_timeout":  c.Reconciler.CycleTimeout.String(),
		},
		"ratelimit": map[string]any{
			"rps":             c.RateLimit.RPS,
			"burst":           c.RateLimit.Burst,
			"trust_forwarded": c.RateLimit.TrustForwarded,
		},
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return masked
}
