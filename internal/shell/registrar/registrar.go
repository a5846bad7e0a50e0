package registrar

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/artpar/pagehost/internal/shell/metrics"
)

// Configuration is a point-in-time verification read for a domain.
type Configuration struct {
	Verified      bool
	Misconfigured bool
}

// Registrar applies the domain registration policy: writes are idempotent
// and best-effort, the configuration read is authoritative.
type Registrar struct {
	client *Client
	logger *slog.Logger
}

// New creates a registrar over client.
func New(client *Client, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{
		client: client,
		logger: logger.With("component", "registrar"),
	}
}

// AddDomain attaches domain to the project. Failures are logged, never
// returned: the provider frequently already holds the domain from an earlier
// attempt, and the workflow proceeds either way.
func (r *Registrar) AddDomain(ctx context.Context, domain string) {
	start := time.Now()
	_, err := r.client.AddProjectDomain(ctx, domain)
	observe("add", start, err)

	var apiErr *APIError
	switch {
	case err == nil:
		r.logger.Info("domain added to project", "domain", domain)
	case errors.As(err, &apiErr) && apiErr.IsConflict():
		r.logger.Info("domain already attached", "domain", domain, "code", apiErr.Code)
	default:
		r.logger.Warn("add domain failed, continuing", "domain", domain, "error", err)
	}
}

// RemoveDomain detaches domain from the project. Failures are logged, never
// returned.
func (r *Registrar) RemoveDomain(ctx context.Context, domain string) {
	start := time.Now()
	err := r.client.RemoveProjectDomain(ctx, domain)
	observe("remove", start, err)

	var apiErr *APIError
	switch {
	case err == nil:
		r.logger.Info("domain removed from project", "domain", domain)
	case errors.As(err, &apiErr) && apiErr.IsNotFound():
		r.logger.Info("domain was not attached", "domain", domain)
	default:
		r.logger.Warn("remove domain failed, continuing", "domain", domain, "error", err)
	}
}

// GetDomainConfiguration reads verification state. Errors are returned to
// the caller; there is no other source for this data.
func (r *Registrar) GetDomainConfiguration(ctx context.Context, domain string) (Configuration, error) {
	start := time.Now()
	cfg, err := r.client.GetDomainConfig(ctx, domain)
	observe("config", start, err)
	if err != nil {
		r.logger.Error("domain config read failed", "domain", domain, "error", err)
		return Configuration{}, err
	}

	r.logger.Debug("domain config read", "domain", domain,
		"misconfigured", cfg.Misconfigured, "configured_by", cfg.ConfiguredBy)
	return Configuration{
		Verified:      !cfg.Misconfigured,
		Misconfigured: cfg.Misconfigured,
	}, nil
}

func observe(call string, start time.Time, err error) {
	metrics.RegistrarLatency.WithLabelValues(call).Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.RegistrarCalls.WithLabelValues(call, result).Inc()
}
