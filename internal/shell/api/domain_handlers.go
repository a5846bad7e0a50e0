package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/artpar/pagehost/internal/core/auth"
	"github.com/artpar/pagehost/internal/shell/api/middleware"
	"github.com/artpar/pagehost/internal/shell/domains"
	"github.com/go-chi/chi/v5"
)

// =============================================================================
// Domain Management Handlers
// =============================================================================

// DomainService is the custom-domain workflow behind the handlers.
type DomainService interface {
	AddDomain(ctx context.Context, req domains.AddRequest) (domains.AddResult, error)
	VerifyDomain(ctx context.Context, raw string) (domains.VerifyResult, error)
	RemoveDomain(ctx context.Context, req domains.RemoveRequest) (domains.RemoveResult, error)
}

// DomainHandlers provides the custom domain endpoints.
type DomainHandlers struct {
	service DomainService
	logger  *slog.Logger
}

// NewDomainHandlers creates a new domain handlers instance.
func NewDomainHandlers(s DomainService, logger *slog.Logger) *DomainHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &DomainHandlers{service: s, logger: logger.With("component", "domain_api")}
}

// RegisterRoutes registers the domain routes. All of them need a session.
func (h *DomainHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/domain", func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.logger))
		r.Post("/add", h.AddDomain)
		r.Delete("/delete", h.RemoveDomain)
		r.Get("/verify", h.VerifyDomain)
	})
}

// =============================================================================
// Add Domain
// =============================================================================

type addDomainRequest struct {
	Slug   string `json:"slug"`
	Domain string `json:"domain"`
}

type addDomainResponse struct {
	OK bool `json:"ok"`
	domains.AddResult
}

// AddDomain connects a domain to one of the caller's pages. Responds 201
// when the domain already resolves, 202 while DNS is pending.
func (h *DomainHandlers) AddDomain(w http.ResponseWriter, r *http.Request) {
	var req addDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDomainError(w, h.logger, &domains.Error{Code: domains.CodeInvalidRequest, Message: "Invalid JSON body"})
		return
	}

	res, err := h.service.AddDomain(r.Context(), domains.AddRequest{
		Slug:   req.Slug,
		Domain: req.Domain,
		UserID: auth.FromContext(r.Context()).UserID,
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	status := http.StatusAccepted
	if res.Verified {
		status = http.StatusCreated
	}
	writeJSON(w, status, addDomainResponse{OK: true, AddResult: res})
}

// =============================================================================
// Remove Domain
// =============================================================================

type removeDomainRequest struct {
	Domain string `json:"domain"`
}

type removeDomainResponse struct {
	OK bool `json:"ok"`
	domains.RemoveResult
}

// RemoveDomain disconnects a domain.
func (h *DomainHandlers) RemoveDomain(w http.ResponseWriter, r *http.Request) {
	var req removeDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDomainError(w, h.logger, &domains.Error{Code: domains.CodeInvalidRequest, Message: "Invalid JSON body"})
		return
	}

	res, err := h.service.RemoveDomain(r.Context(), domains.RemoveRequest{
		Domain: req.Domain,
		UserID: auth.FromContext(r.Context()).UserID,
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, removeDomainResponse{OK: true, RemoveResult: res})
}

// =============================================================================
// Verify Domain
// =============================================================================

type verifyDomainResponse struct {
	OK bool `json:"ok"`
	domains.VerifyResult
}

// VerifyDomain reports whether DNS for ?domain= points at the provider.
func (h *DomainHandlers) VerifyDomain(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.VerifyDomain(r.Context(), r.URL.Query().Get("domain"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyDomainResponse{OK: true, VerifyResult: res})
}

// =============================================================================
// Helpers
// =============================================================================

// writeDomainError renders a workflow error as {"error":{"code","message"}}.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var de *domains.Error
	if !errors.As(err, &de) {
		logger.Error("domain request failed", "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	if de.HTTPStatus() >= http.StatusInternalServerError {
		logger.Error("domain request failed", "code", de.Code, "error", err)
	}
	middleware.WriteError(w, de.HTTPStatus(), string(de.Code), de.Message)
}
