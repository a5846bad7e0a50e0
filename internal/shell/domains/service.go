// Package domains coordinates custom domain connections across the hosting
// provider, the routing table and the tenant store.
//
// The three systems share no transaction. Each step has a fixed failure
// policy: registrar writes are best-effort, registrar reads and routing
// table writes are fatal, and a tenant store failure is reported without
// undoing the routing table write. VerifyDomain, Reconcile and SweepOrphans
// are the convergence path after a partial failure.
//
// RemoveDomain leaves the page record to the caller. The removal marker it
// writes keeps Reconcile from routing the domain again off a page record
// that has not caught up yet.
package domains

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/artpar/pagehost/internal/core/dns"
	"github.com/artpar/pagehost/internal/core/domain"
	"github.com/artpar/pagehost/internal/shell/metrics"
	"github.com/artpar/pagehost/internal/shell/registrar"
	"github.com/artpar/pagehost/internal/shell/routing"
	"github.com/artpar/pagehost/internal/shell/store"
)

// DefaultStepTimeout bounds every remote call made by the service.
const DefaultStepTimeout = 10 * time.Second

// =============================================================================
// Collaborators
// =============================================================================

// Registrar is the hosting provider's domain API.
type Registrar interface {
	AddDomain(ctx context.Context, domain string)
	RemoveDomain(ctx context.Context, domain string)
	GetDomainConfiguration(ctx context.Context, domain string) (registrar.Configuration, error)
}

// PageStore is the subset of the tenant store the service touches.
type PageStore interface {
	GetPageBySlug(ctx context.Context, slug string) (*domain.Page, error)
	GetPageByCustomDomain(ctx context.Context, hostname string) (*domain.Page, error)
	SetCustomDomain(ctx context.Context, slug string, hostname *string) (*domain.Page, error)
}

// Revalidator drops cached renderings of public paths.
type Revalidator interface {
	Invalidate(paths ...string)
}

// Config tunes the service.
type Config struct {
	Targets dns.Targets

	// StrictOwnership makes AddDomain refuse a domain already routed to a
	// different slug instead of overwriting the mapping.
	StrictOwnership bool

	StepTimeout time.Duration
}

// Service is the domain orchestrator.
type Service struct {
	table       routing.Table
	registrar   Registrar
	pages       PageStore
	revalidator Revalidator
	config      Config
	logger      *slog.Logger
}

// NewService creates an orchestrator. revalidator may be nil.
func NewService(table routing.Table, reg Registrar, pages PageStore, revalidator Revalidator, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultStepTimeout
	}
	if cfg.Targets == (dns.Targets{}) {
		cfg.Targets = dns.DefaultTargets()
	}
	return &Service{
		table:       table,
		registrar:   reg,
		pages:       pages,
		revalidator: revalidator,
		config:      cfg,
		logger:      logger.With("component", "domains"),
	}
}

// =============================================================================
// Requests and Results
// =============================================================================

// AddRequest connects Domain to the page addressed by Slug.
// UserID, when set, must own the page.
type AddRequest struct {
	Slug   string
	Domain string
	UserID string
}

// AddResult is returned by a successful AddDomain.
type AddResult struct {
	Slug       string       `json:"slug"`
	Domain     string       `json:"domain"`
	Verified   bool         `json:"verified"`
	DNSRecords []dns.Record `json:"dnsRecords"`
	State      dns.State    `json:"state"`
}

// VerifyResult is returned by VerifyDomain.
type VerifyResult struct {
	Domain     string       `json:"domain"`
	Verified   bool         `json:"verified"`
	DNSRecords []dns.Record `json:"dnsRecords"`
	State      dns.State    `json:"state"`
}

// RemoveRequest disconnects Domain. UserID, when set, must own the page the
// domain currently routes to.
type RemoveRequest struct {
	Domain string
	UserID string
}

// RemoveResult carries the slug the domain was routed to, nil if none.
type RemoveResult struct {
	Domain string  `json:"domain"`
	Slug   *string `json:"slug"`
}

// =============================================================================
// AddDomain
// =============================================================================

// AddDomain registers the domain with the provider, routes it to the page
// and records it on the page.
func (s *Service) AddDomain(ctx context.Context, req AddRequest) (res AddResult, err error) {
	defer func() { record("add", err) }()

	slug := strings.TrimSpace(req.Slug)
	if !domain.IsSafeSlug(slug) {
		return AddResult{}, newError(CodeInvalidRequest, "Invalid request body or domain format", nil)
	}
	n, ok := dns.Normalize(req.Domain)
	if !ok {
		return AddResult{}, newError(CodeInvalidRequest, "Invalid request body or domain format", nil)
	}
	log := s.logger.With("domain", n.Domain, "slug", slug)

	if req.UserID != "" {
		if _, err := s.ownedPage(ctx, slug, req.UserID); err != nil {
			return AddResult{}, err
		}
	}

	stepCtx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
	s.registrar.AddDomain(stepCtx, n.Domain)
	cancel()

	// The mapping is written whatever the provider says; a failed read only
	// means the caller does not learn the verification state yet.
	misconfigured := false
	verified := false
	stepCtx, cancel = context.WithTimeout(ctx, s.config.StepTimeout)
	cfg, cfgErr := s.registrar.GetDomainConfiguration(stepCtx, n.Domain)
	cancel()
	if cfgErr != nil {
		log.Warn("domain configuration unavailable after add", "error", cfgErr)
	} else {
		misconfigured = cfg.Misconfigured
		verified = cfg.Verified
	}

	if err := s.route(ctx, n.Domain, slug); err != nil {
		return AddResult{}, err
	}

	stepCtx, cancel = context.WithTimeout(ctx, s.config.StepTimeout)
	hostname := n.Domain
	_, err = s.pages.SetCustomDomain(stepCtx, slug, &hostname)
	cancel()
	if err != nil {
		// The routing entry stays; Reconcile or a retry brings the record in line.
		log.Error("tenant record update failed", "error", err)
		switch {
		case errors.Is(err, store.ErrDuplicateDomain):
			return AddResult{}, newError(CodeDomainTaken, "Domain is already connected to another page", err)
		case store.IsNotFound(err):
			return AddResult{}, newError(CodeTenantStore, "Landing page not found", err)
		}
		return AddResult{}, newError(CodeTenantStore, "Failed to update landing page", err)
	}

	s.invalidate("/" + slug)

	state := dns.StatePending
	if cfgErr == nil {
		state = dns.StateFromCheck(misconfigured)
	}
	log.Info("domain connected", "verified", verified, "state", state)

	return AddResult{
		Slug:       slug,
		Domain:     n.Domain,
		Verified:   verified,
		DNSRecords: dns.Instructions(n.Sub, misconfigured, s.config.Targets),
		State:      state,
	}, nil
}

// route writes the routing entry, conditionally under StrictOwnership.
func (s *Service) route(ctx context.Context, hostname, slug string) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
	defer cancel()

	if !s.config.StrictOwnership {
		if err := s.table.Set(ctx, hostname, slug); err != nil {
			return newError(CodeKV, "Failed to persist domain mapping", err)
		}
		return nil
	}

	owner, claimed, err := s.table.Claim(ctx, hostname, slug)
	if err != nil {
		return newError(CodeKV, "Failed to persist domain mapping", err)
	}
	if !claimed {
		s.logger.Warn("domain claimed by another page", "domain", hostname, "slug", slug, "owner", owner)
		return newError(CodeDomainTaken, "Domain is already connected to another page", nil)
	}
	return nil
}

// =============================================================================
// VerifyDomain
// =============================================================================

// VerifyDomain reads the provider's verification state. It mutates nothing.
func (s *Service) VerifyDomain(ctx context.Context, raw string) (res VerifyResult, err error) {
	defer func() { record("verify", err) }()

	n, ok := dns.Normalize(raw)
	if !ok {
		return VerifyResult{}, newError(CodeInvalidRequest, "Invalid domain", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
	defer cancel()

	cfg, err := s.registrar.GetDomainConfiguration(ctx, n.Domain)
	if err != nil {
		return VerifyResult{}, newError(CodeRegistrar, "Failed to read domain configuration", err)
	}

	return VerifyResult{
		Domain:     n.Domain,
		Verified:   !cfg.Misconfigured,
		DNSRecords: dns.Instructions(n.Sub, cfg.Misconfigured, s.config.Targets),
		State:      dns.StateFromCheck(cfg.Misconfigured),
	}, nil
}

// =============================================================================
// RemoveDomain
// =============================================================================

// RemoveDomain detaches the domain from the provider and pops its routing
// entry. The page record is left to the caller.
func (s *Service) RemoveDomain(ctx context.Context, req RemoveRequest) (res RemoveResult, err error) {
	defer func() { record("remove", err) }()

	hostname := strings.ToLower(strings.TrimSpace(req.Domain))
	if hostname == "" {
		return RemoveResult{}, newError(CodeInvalidRequest, "Invalid request body", nil)
	}
	// Malformed keys are still removable, so a failed normalization falls
	// back to the trimmed input.
	if n, ok := dns.Normalize(hostname); ok {
		hostname = n.Domain
	}

	if req.UserID != "" {
		if err := s.checkRouteOwner(ctx, hostname, req.UserID); err != nil {
			return RemoveResult{}, err
		}
	}

	stepCtx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
	s.registrar.RemoveDomain(stepCtx, hostname)
	cancel()

	stepCtx, cancel = context.WithTimeout(ctx, s.config.StepTimeout)
	slug, found, err := s.table.GetAndDelete(stepCtx, hostname)
	cancel()
	if err != nil {
		return RemoveResult{}, newError(CodeKV, "Failed to delete domain mapping", err)
	}

	res = RemoveResult{Domain: hostname}
	if found {
		res.Slug = &slug
		s.invalidate("/" + slug)
	}
	s.logger.Info("domain disconnected", "domain", hostname, "slug", slug, "mapped", found)
	return res, nil
}

// checkRouteOwner fails when the domain belongs to a page userID does not
// own. The page the domain routes to decides; without one, the page record
// naming the domain does. A domain no page claims passes.
func (s *Service) checkRouteOwner(ctx context.Context, hostname, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
	defer cancel()

	slug, found, err := s.table.Get(ctx, hostname)
	if err != nil {
		return newError(CodeKV, "Failed to read domain mapping", err)
	}

	var page *domain.Page
	if found {
		page, err = s.pages.GetPageBySlug(ctx, slug)
		if err != nil && !store.IsNotFound(err) {
			return newError(CodeTenantStore, "Failed to load landing page", err)
		}
	}
	if page == nil {
		page, err = s.pages.GetPageByCustomDomain(ctx, hostname)
		if store.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return newError(CodeTenantStore, "Failed to load landing page", err)
		}
	}

	if page.UserID != userID {
		return newError(CodeForbidden, "Not authorized", nil)
	}
	return nil
}

// =============================================================================
// Page lifecycle
// =============================================================================

// ReleasePage cleans up after a deleted page: the routing entry is removed
// if it still points at the page, and the provider registration is dropped
// unless another page has taken the domain over. Failures are logged only.
func (s *Service) ReleasePage(ctx context.Context, page domain.Page) {
	hostname := page.Domain()
	if hostname == "" {
		return
	}
	log := s.logger.With("domain", hostname, "slug", page.Slug)

	ctx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
	defer cancel()

	owner, found, err := s.table.Get(ctx, hostname)
	if err != nil {
		log.Warn("routing entry lookup failed during release", "error", err)
		return
	}
	if found && owner != page.Slug {
		log.Info("domain routed to another page, leaving it", "owner", owner)
		return
	}

	if found {
		if _, err := s.table.DeleteIf(ctx, hostname, page.Slug); err != nil {
			log.Warn("routing entry cleanup failed", "error", err)
		}
	}
	s.registrar.RemoveDomain(ctx, hostname)
	record("release", nil)
	log.Info("page domain released")
}

// ReconcileResult describes what Reconcile found and did.
type ReconcileResult struct {
	Domain   string
	State    dns.State
	Restored bool
	// Removed is set when the owner disconnected the domain and the page
	// record has not been cleared yet. Nothing is written.
	Removed bool
	// Conflict is set when the routing entry points at another slug.
	Conflict bool
}

// Reconcile brings the routing entry of a page with a custom domain back in
// line with the page record and reports the provider's verification state.
// A missing entry is only restored when no removal marker exists for it.
func (s *Service) Reconcile(ctx context.Context, page domain.Page) (res ReconcileResult, err error) {
	defer func() { record("reconcile", err) }()

	hostname := page.Domain()
	if hostname == "" {
		return ReconcileResult{}, newError(CodeInvalidRequest, "Page has no custom domain", nil)
	}
	res.Domain = hostname

	stepCtx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
	owner, found, err := s.table.Get(stepCtx, hostname)
	cancel()
	if err != nil {
		return res, newError(CodeKV, "Failed to read domain mapping", err)
	}

	switch {
	case !found:
		stepCtx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
		removed, err := s.table.Removed(stepCtx, hostname)
		cancel()
		if err != nil {
			return res, newError(CodeKV, "Failed to read domain mapping", err)
		}
		if removed {
			res.Removed = true
			res.State = dns.StateRemoved
			s.logger.Info("domain was disconnected, page record is stale", "domain", hostname, "slug", page.Slug)
			return res, nil
		}
		if err := s.route(ctx, hostname, page.Slug); err != nil {
			return res, err
		}
		res.Restored = true
		s.invalidate(page.Path())
		s.logger.Info("routing entry restored", "domain", hostname, "slug", page.Slug)
	case owner != page.Slug:
		res.Conflict = true
		s.logger.Warn("routing entry points at another page", "domain", hostname, "slug", page.Slug, "owner", owner)
	}

	verified, err := s.VerifyDomain(ctx, hostname)
	if err != nil {
		return res, err
	}
	res.State = verified.State
	return res, nil
}

// SweepResult counts what SweepOrphans found.
type SweepResult struct {
	Checked int
	// Deleted entries pointed at no page, and no page record named them.
	Deleted int
	// Stale entries disagree with the page records but are left in place.
	Stale int
}

// SweepOrphans walks the routing table. An entry whose slug has no page and
// whose domain no page record names is deleted and dropped at the provider;
// this is what a failed ReleasePage leaves behind. Other disagreements, such
// as a renamed slug, are only reported.
func (s *Service) SweepOrphans(ctx context.Context) (res SweepResult, err error) {
	defer func() { record("sweep", err) }()

	err = s.table.Scan(ctx, func(hostname, slug string) error {
		res.Checked++

		orphan, stale, err := s.classifyEntry(ctx, hostname, slug)
		if err != nil {
			return err
		}
		switch {
		case orphan:
			stepCtx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
			defer cancel()
			deleted, err := s.table.DeleteIf(stepCtx, hostname, slug)
			if err != nil {
				return newError(CodeKV, "Failed to delete domain mapping", err)
			}
			if deleted {
				s.registrar.RemoveDomain(stepCtx, hostname)
				res.Deleted++
				s.logger.Info("orphaned routing entry deleted", "domain", hostname, "slug", slug)
			}
		case stale:
			res.Stale++
			s.logger.Warn("routing entry disagrees with page records", "domain", hostname, "slug", slug)
		}
		return nil
	})
	if err != nil && CodeOf(err) == "" {
		err = newError(CodeKV, "Failed to scan domain mappings", err)
	}
	return res, err
}

func (s *Service) classifyEntry(ctx context.Context, hostname, slug string) (orphan, stale bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
	defer cancel()

	page, err := s.pages.GetPageBySlug(ctx, slug)
	if err == nil {
		return false, page.Domain() != hostname, nil
	}
	if !store.IsNotFound(err) {
		return false, false, newError(CodeTenantStore, "Failed to load landing page", err)
	}

	_, err = s.pages.GetPageByCustomDomain(ctx, hostname)
	if err == nil {
		return false, true, nil
	}
	if !store.IsNotFound(err) {
		return false, false, newError(CodeTenantStore, "Failed to load landing page", err)
	}
	return true, false, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (s *Service) ownedPage(ctx context.Context, slug, userID string) (*domain.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
	defer cancel()

	page, err := s.pages.GetPageBySlug(ctx, slug)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, newError(CodeNotFound, "Landing page not found", err)
		}
		return nil, newError(CodeTenantStore, "Failed to load landing page", err)
	}
	if page.UserID != userID {
		return nil, newError(CodeForbidden, "Not authorized", nil)
	}
	return page, nil
}

func (s *Service) invalidate(paths ...string) {
	if s.revalidator != nil {
		s.revalidator.Invalidate(paths...)
	}
}

func record(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(CodeOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	metrics.DomainOperations.WithLabelValues(op, outcome).Inc()
}
