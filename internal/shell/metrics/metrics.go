// Package metrics holds Prometheus instruments shared across the server.
// All collectors are registered with the global registry, so importing this
// package is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	DomainOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagehost_domain_operations_total",
			Help: "Domain workflow operations by operation and outcome code.",
		}, []string{"operation", "outcome"})

	RegistrarCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagehost_registrar_calls_total",
			Help: "Calls to the hosting provider's domain API by call and result.",
		}, []string{"call", "result"})

	RegistrarLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagehost_registrar_call_duration_seconds",
			Help:    "Latency of hosting provider domain API calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"call"})

	EdgeDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagehost_edge_decisions_total",
			Help: "Edge routing decisions by action and reason.",
		}, []string{"action", "reason"})

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagehost_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "status"})

	PageCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagehost_page_cache_lookups_total",
			Help: "Public page payload cache lookups by result (hit, miss).",
		}, []string{"result"})

	PageCacheInvalidations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pagehost_page_cache_invalidations_total",
			Help: "Cached page payloads dropped by revalidation.",
		})

	ReconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagehost_reconcile_domains_total",
			Help: "Domains processed by the reconciler by result.",
		}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		DomainOperations,
		RegistrarCalls,
		RegistrarLatency,
		EdgeDecisions,
		HTTPRequests,
		PageCacheLookups,
		PageCacheInvalidations,
		ReconcileRuns,
	)
}
