package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/artpar/pagehost/internal/core/auth"
	"github.com/artpar/pagehost/internal/core/domain"
	"github.com/artpar/pagehost/internal/shell/api/middleware"
	"github.com/artpar/pagehost/internal/shell/revalidate"
	"github.com/go-chi/chi/v5"
)

// =============================================================================
// Revalidation Handler
// =============================================================================

// Invalidator drops cached public payloads.
type Invalidator interface {
	Invalidate(paths ...string)
}

// RevalidateHandlers serves the on-demand revalidation hook used by the
// tenant database's change triggers.
type RevalidateHandlers struct {
	cache  Invalidator
	secret []byte
	logger *slog.Logger
}

// NewRevalidateHandlers creates the handler. An empty secret rejects every
// request.
func NewRevalidateHandlers(cache Invalidator, secret string, logger *slog.Logger) *RevalidateHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &RevalidateHandlers{
		cache:  cache,
		secret: []byte(secret),
		logger: logger.With("component", "revalidate_api"),
	}
}

// RegisterRoutes registers POST /api/revalidate.
func (h *RevalidateHandlers) RegisterRoutes(r chi.Router) {
	r.Post("/api/revalidate", h.Revalidate)
}

type revalidateResponse struct {
	Revalidated bool   `json:"revalidated"`
	Path        string `json:"path"`
}

// Revalidate drops the cached payload of {"slug"}.
func (h *RevalidateHandlers) Revalidate(w http.ResponseWriter, r *http.Request) {
	token := []byte(auth.TokenFromHeaders(r.Header))
	if len(h.secret) == 0 || subtle.ConstantTimeCompare(token, h.secret) != 1 {
		h.logger.Warn("revalidation rejected", "remote_addr", r.RemoteAddr)
		middleware.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid revalidation secret")
		return
	}

	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}
	slug, ok := body["slug"].(string)
	if !ok || !domain.IsSafeSlug(slug) {
		middleware.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Missing or invalid slug")
		return
	}

	path := revalidate.Path(slug)
	h.cache.Invalidate(path)
	h.logger.Info("page revalidated", "path", path)

	writeJSON(w, http.StatusOK, revalidateResponse{Revalidated: true, Path: path})
}
