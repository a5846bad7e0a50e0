package workers

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artpar/pagehost/internal/core/domain"
	"github.com/artpar/pagehost/internal/shell/domains"
	"github.com/artpar/pagehost/internal/shell/metrics"
	"github.com/artpar/pagehost/internal/shell/store"
)

// ReconcilerConfig configures the domain reconciler.
type ReconcilerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	CycleTimeout  time.Duration `mapstructure:"cycle_timeout"`
}

// DefaultReconcilerConfig returns default configuration.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Enabled:       true,
		Interval:      5 * time.Minute,
		InitialDelay:  10 * time.Second,
		MaxConcurrent: 5,
		CycleTimeout:  2 * time.Minute,
	}
}

// PageLister lists pages that carry a custom domain.
type PageLister interface {
	ListPagesWithCustomDomain(ctx context.Context, opts store.ListOptions) ([]domain.Page, error)
}

// DomainReconciler repairs a single page's routing entry and sweeps
// entries no page owns.
type DomainReconciler interface {
	Reconcile(ctx context.Context, page domain.Page) (domains.ReconcileResult, error)
	SweepOrphans(ctx context.Context) (domains.SweepResult, error)
}

// CycleSummary counts what one reconcile cycle did.
type CycleSummary struct {
	Checked   int
	Restored  int
	Removed   int
	Conflicts int
	Failed    int

	// Routing table sweep.
	Orphans int
	Stale   int
}

const reconcilePageSize = 500

// Reconciler periodically walks every page with a custom domain and
// re-asserts its routing entry, so partial AddDomain failures converge.
// Domains the owner removed are left alone. Each cycle ends with a sweep of
// the routing table for entries no page owns.
type Reconciler struct {
	pages      PageLister
	reconciler DomainReconciler
	config     ReconcilerConfig
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewReconciler creates a new domain reconciler.
func NewReconciler(pages PageLister, r DomainReconciler, config ReconcilerConfig, logger *slog.Logger) *Reconciler {
	defaults := DefaultReconcilerConfig()
	if config.Interval == 0 {
		config.Interval = defaults.Interval
	}
	if config.InitialDelay < 0 {
		config.InitialDelay = 0
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}
	if config.CycleTimeout == 0 {
		config.CycleTimeout = defaults.CycleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		pages:      pages,
		reconciler: r,
		config:     config,
		logger:     logger.With("component", "domain_reconciler"),
	}
}

// Start begins the reconciler background goroutine.
func (r *Reconciler) Start() {
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.wg.Add(1)
	go r.run()
	r.logger.Info("domain reconciler started", "interval", r.config.Interval)
}

// Stop gracefully stops the reconciler.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("domain reconciler stopped")
}

func (r *Reconciler) run() {
	defer r.wg.Done()

	select {
	case <-r.ctx.Done():
		return
	case <-time.After(r.config.InitialDelay):
	}
	r.RunCycle(r.ctx)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.RunCycle(r.ctx)
		}
	}
}

// RunCycle reconciles every page with a custom domain once.
func (r *Reconciler) RunCycle(ctx context.Context) CycleSummary {
	ctx, cancel := context.WithTimeout(ctx, r.config.CycleTimeout)
	defer cancel()

	var (
		checked, restored, removed, conflicts, failed int64
		wg                                            sync.WaitGroup
	)
	sem := make(chan struct{}, r.config.MaxConcurrent)

	for offset := 0; ; offset += reconcilePageSize {
		pages, err := r.pages.ListPagesWithCustomDomain(ctx, store.ListOptions{Limit: reconcilePageSize, Offset: offset})
		if err != nil {
			r.logger.Error("failed to list pages for reconciliation", "error", err)
			break
		}

		for _, page := range pages {
			wg.Add(1)
			go func(p domain.Page) {
				defer wg.Done()
				select {
				case <-ctx.Done():
					return
				case sem <- struct{}{}:
					defer func() { <-sem }()
				}

				atomic.AddInt64(&checked, 1)
				res, err := r.reconciler.Reconcile(ctx, p)
				switch {
				case err != nil:
					atomic.AddInt64(&failed, 1)
					metrics.ReconcileRuns.WithLabelValues("failed").Inc()
					r.logger.Warn("domain reconcile failed", "slug", p.Slug, "domain", p.Domain(), "error", err)
				case res.Restored:
					atomic.AddInt64(&restored, 1)
					metrics.ReconcileRuns.WithLabelValues("restored").Inc()
				case res.Removed:
					atomic.AddInt64(&removed, 1)
					metrics.ReconcileRuns.WithLabelValues("removed").Inc()
				case res.Conflict:
					atomic.AddInt64(&conflicts, 1)
					metrics.ReconcileRuns.WithLabelValues("conflict").Inc()
				default:
					metrics.ReconcileRuns.WithLabelValues("ok").Inc()
				}
			}(page)
		}

		if len(pages) < reconcilePageSize {
			break
		}
	}

	wg.Wait()

	summary := CycleSummary{
		Checked:   int(checked),
		Restored:  int(restored),
		Removed:   int(removed),
		Conflicts: int(conflicts),
		Failed:    int(failed),
	}

	if ctx.Err() == nil {
		sweep, err := r.reconciler.SweepOrphans(ctx)
		if err != nil {
			r.logger.Warn("routing table sweep failed", "error", err)
		}
		summary.Orphans = sweep.Deleted
		summary.Stale = sweep.Stale
		metrics.ReconcileRuns.WithLabelValues("orphan_deleted").Add(float64(sweep.Deleted))
	}

	if summary.Checked > 0 || summary.Orphans > 0 {
		r.logger.Debug("reconcile cycle finished",
			"checked", summary.Checked, "restored", summary.Restored,
			"removed", summary.Removed, "conflicts", summary.Conflicts,
			"failed", summary.Failed, "orphans", summary.Orphans, "stale", summary.Stale)
	}
	return summary
}
