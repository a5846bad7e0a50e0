// Package site serves the public content of tenant pages. Requests reach it
// either directly at /{slug} or through an edge rewrite of a tenant
// subdomain or custom domain.
package site

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/artpar/pagehost/internal/core/domain"
	"github.com/artpar/pagehost/internal/shell/revalidate"
	"github.com/go-chi/chi/v5"
)

// PayloadSource returns the public payload of a page.
type PayloadSource interface {
	Get(ctx context.Context, slug string) (*revalidate.Payload, error)
}

// Handler serves page payloads.
type Handler struct {
	source PayloadSource
	logger *slog.Logger
}

// NewHandler creates a site handler backed by source.
func NewHandler(source PayloadSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{source: source, logger: logger.With("component", "site")}
}

// Routes returns the site router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/{slug}", h.handlePage)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	return r
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	// Reserved segments belong to the dashboard and API, never to a tenant.
	if domain.IsReservedSlug(slug) || !domain.IsSafeSlug(slug) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	payload, err := h.source.Get(r.Context(), slug)
	if err != nil {
		if errors.Is(err, revalidate.ErrPageNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "page not found"})
			return
		}
		h.logger.Error("failed to load page", "slug", slug, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load page"})
		return
	}

	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
