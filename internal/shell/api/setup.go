// Package api provides the HTTP surface of pagehost: the JSON:API editor
// resources, the plain-JSON domain, revalidation and file endpoints, and the
// edge routing in front of the public site.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/artpar/pagehost/internal/core/domain"
	"github.com/artpar/pagehost/internal/core/edge"
	"github.com/artpar/pagehost/internal/shell/api/middleware"
	"github.com/artpar/pagehost/internal/shell/api/openapi"
	"github.com/artpar/pagehost/internal/shell/api/resources"
	"github.com/artpar/pagehost/internal/shell/blob"
	"github.com/artpar/pagehost/internal/shell/domains"
	"github.com/artpar/pagehost/internal/shell/metrics"
	"github.com/artpar/pagehost/internal/shell/revalidate"
	"github.com/artpar/pagehost/internal/shell/site"
	"github.com/artpar/pagehost/internal/shell/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/manyminds/api2go"
	"github.com/manyminds/api2go/jsonapi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// API Setup
// =============================================================================

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// APIConfig holds configuration for the API setup.
type APIConfig struct {
	Store   store.Store
	Domains *domains.Service
	Cache   *revalidate.Cache
	Blob    *blob.Store // nil disables the file endpoints
	Routes  middleware.DomainLookup
	Logger  *slog.Logger

	// ReadyChecks are pinged by /ready, keyed by name.
	ReadyChecks map[string]Pinger

	EdgeRules edge.Rules
	SignInURL string

	Auth             middleware.AuthConfig
	RevalidateSecret string
	RateLimit        middleware.RateLimitConfig
}

// SetupAPI creates the complete handler. Request flow:
// request ID, recovery, metrics, session, edge routing, then the router.
func SetupAPI(cfg APIConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Auth.Logger = cfg.Logger

	// api2go serves the JSON:API resources under /api/v1.
	jsonAPI := api2go.NewAPIWithResolver("v1", api2go.NewStaticResolver("/api"))
	jsonAPI.ContentType = "application/vnd.api+json"

	var releaser resources.PageReleaser
	if cfg.Domains != nil {
		releaser = cfg.Domains
	}
	var invalidator resources.Invalidator
	if cfg.Cache != nil {
		invalidator = cfg.Cache
	}

	pageResource := resources.NewPageResource(cfg.Store, releaser, invalidator, cfg.Logger)
	sectionResource := resources.NewSectionResource(cfg.Store, invalidator, cfg.Logger)

	jsonAPI.AddResource(resources.Page{}, pageResource)
	jsonAPI.AddResource(resources.Section{}, sectionResource)

	// Plain-JSON endpoints.
	plain := chi.NewRouter()
	if cfg.RateLimit.RPS > 0 {
		plain.Use(middleware.NewRateLimiter(cfg.RateLimit).Middleware)
	}
	if cfg.Domains != nil {
		NewDomainHandlers(cfg.Domains, cfg.Logger).RegisterRoutes(plain)
	}
	if cfg.Cache != nil {
		NewRevalidateHandlers(cfg.Cache, cfg.RevalidateSecret, cfg.Logger).RegisterRoutes(plain)
	}
	var presigner Presigner
	if cfg.Blob != nil {
		presigner = cfg.Blob
	}
	NewFileHandlers(cfg.Store, presigner, cfg.Logger).RegisterRoutes(plain)

	router := mux.NewRouter()

	// Health endpoints
	router.HandleFunc("/health", healthHandler).Methods("GET")
	router.HandleFunc("/ready", readyHandler(cfg.ReadyChecks)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Custom actions go before the api2go prefix so they are not swallowed.
	router.HandleFunc("/api/v1/pages/{id}/sections/reorder", func(w http.ResponseWriter, r *http.Request) {
		resp, err := sectionResource.ReorderSections(mux.Vars(r)["id"], r)
		writeResponder(w, resp, err, cfg.Logger)
	}).Methods("POST")

	router.PathPrefix("/api/domain").Handler(plain)
	router.PathPrefix("/api/revalidate").Handler(plain)
	router.PathPrefix("/api/files").Handler(plain)

	openapiGen := openapi.NewGenerator(
		openapi.WithTitle("pagehost API"),
		openapi.WithVersion("1.0.0"),
		openapi.WithDescription("Landing page builder API: pages, sections, custom domains and files"),
		openapi.WithServer("/"),
	)
	registerOpenAPI(openapiGen)
	router.HandleFunc("/openapi.json", openapiGen.Handler()).Methods("GET")

	// api2go expects paths without the /api prefix.
	router.PathPrefix("/api").Handler(http.StripPrefix("/api", jsonAPI.Handler()))

	// Public page payloads; edge rewrites land here.
	if cfg.Cache != nil {
		router.PathPrefix("/").Handler(site.NewHandler(cfg.Cache, cfg.Logger).Routes())
	}

	var h http.Handler = router
	h = middleware.Edge(middleware.EdgeConfig{
		Rules:     cfg.EdgeRules,
		Lookup:    cfg.Routes,
		SignInURL: cfg.SignInURL,
		Logger:    cfg.Logger,
	})(h)
	h = middleware.NewAuthMiddleware(cfg.Auth).Handler(h)
	h = metricsMiddleware(h)
	h = recoveryMiddleware(cfg.Logger)(h)
	h = requestIDMiddleware(h)
	return h
}

// registerOpenAPI documents every route the server exposes.
func registerOpenAPI(g *openapi.Generator) {
	g.RegisterResource(openapi.ResourceInfo{
		Name:           "pages",
		Model:          resources.Page{},
		SupportsFind:   true,
		SupportsCreate: true,
		SupportsUpdate: true,
		SupportsDelete: true,
	})
	g.RegisterResource(openapi.ResourceInfo{
		Name:           "sections",
		Model:          resources.Section{},
		SupportsFind:   true,
		SupportsCreate: true,
		SupportsUpdate: true,
		SupportsDelete: true,
	})

	g.RegisterOperation(openapi.OperationInfo{
		Method: "POST", Path: "/api/v1/pages/{id}/sections/reorder",
		ID: "reorderSections", Summary: "Reorder the sections of a page", Tag: "Sections",
		Request: []domain.SectionOrder{}, Response: []resources.Section{},
	})
	g.RegisterOperation(openapi.OperationInfo{
		Method: "POST", Path: "/api/domain/add",
		ID: "addDomain", Summary: "Connect a custom domain to a page", Tag: "Domains",
		Request: addDomainRequest{}, Response: addDomainResponse{},
		Statuses: []int{http.StatusCreated, http.StatusAccepted},
	})
	g.RegisterOperation(openapi.OperationInfo{
		Method: "DELETE", Path: "/api/domain/delete",
		ID: "deleteDomain", Summary: "Disconnect a custom domain", Tag: "Domains",
		Request: removeDomainRequest{}, Response: removeDomainResponse{},
	})
	g.RegisterOperation(openapi.OperationInfo{
		Method: "GET", Path: "/api/domain/verify",
		ID: "verifyDomain", Summary: "Check DNS configuration of a domain", Tag: "Domains",
		Query: []string{"domain"}, Response: verifyDomainResponse{},
	})
	g.RegisterOperation(openapi.OperationInfo{
		Method: "POST", Path: "/api/revalidate",
		ID: "revalidate", Summary: "Drop the cached payload of a page", Tag: "Pages",
		Request: map[string]string{}, Response: revalidateResponse{},
	})
	g.RegisterOperation(openapi.OperationInfo{
		Method: "POST", Path: "/api/files/upload-url",
		ID: "createUploadURL", Summary: "Sign a direct upload", Tag: "Files",
		Request: uploadURLRequest{}, Response: blob.PresignedRequest{},
	})
	g.RegisterOperation(openapi.OperationInfo{
		Method: "POST", Path: "/api/files",
		ID: "saveFile", Summary: "Record an uploaded file", Tag: "Files",
		Request: saveFileRequest{}, Response: domain.File{},
		Statuses: []int{http.StatusCreated},
	})
	g.RegisterOperation(openapi.OperationInfo{
		Method: "GET", Path: "/api/files",
		ID: "listFiles", Summary: "List the caller's files", Tag: "Files",
		Response: []fileResponse{},
	})
}

// =============================================================================
// Middleware
// =============================================================================

// requestIDMiddleware generates and adds a request ID to responses.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = "req_" + uuid.New().String()[:12]
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware recovers from panics and returns a 500 error.
func recoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered", "error", err, "path", r.URL.Path)
					middleware.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware counts requests by method and status.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func readyHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		results := make(map[string]string, len(checks))
		ready := true
		for name, p := range checks {
			if err := p.Ping(ctx); err != nil {
				results[name] = "failed"
				ready = false
				continue
			}
			results[name] = "ok"
		}

		if !ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status": "not_ready",
				"checks": results,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ready",
			"checks": results,
		})
	}
}

// =============================================================================
// Helpers
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeResponder writes an api2go.Responder to the response writer.
func writeResponder(w http.ResponseWriter, resp api2go.Responder, err error, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/vnd.api+json")

	if err != nil {
		if httpErr, ok := err.(api2go.HTTPError); ok && len(httpErr.Errors) > 0 {
			w.WriteHeader(parseStatus(httpErr.Errors[0].Status))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"errors": httpErr.Errors,
			})
			return
		}
		logger.Error("request error", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]interface{}{
				{
					"status": "500",
					"title":  "Internal Server Error",
				},
			},
		})
		return
	}

	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	result := resp.Result()
	if result == nil {
		w.WriteHeader(resp.StatusCode())
		return
	}
	doc, err := jsonapi.MarshalToStruct(result, nil)
	if err != nil {
		logger.Error("failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if meta := resp.Metadata(); len(meta) > 0 {
		doc.Meta = meta
	}
	w.WriteHeader(resp.StatusCode())
	json.NewEncoder(w).Encode(doc)
}

// parseStatus converts a status string to an int.
func parseStatus(status string) int {
	if i, err := strconv.Atoi(status); err == nil && i > 0 {
		return i
	}
	return http.StatusInternalServerError
}
