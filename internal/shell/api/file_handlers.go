package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/artpar/pagehost/internal/core/auth"
	"github.com/artpar/pagehost/internal/core/domain"
	"github.com/artpar/pagehost/internal/shell/api/middleware"
	"github.com/artpar/pagehost/internal/shell/blob"
	"github.com/artpar/pagehost/internal/shell/store"
	"github.com/go-chi/chi/v5"
)

// =============================================================================
// File Handlers
// =============================================================================

// Presigner signs direct-to-bucket uploads and downloads.
type Presigner interface {
	PresignUpload(ctx context.Context, key, contentType string) (*blob.PresignedRequest, error)
	PresignDownload(ctx context.Context, key string) (string, error)
}

// FileStore is the subset of store.Store the file endpoints use.
type FileStore interface {
	CreateFile(ctx context.Context, file *domain.File) error
	ListFilesByUser(ctx context.Context, userID string, opts store.ListOptions) ([]domain.File, error)
}

// FileHandlers serves asset uploads. Bytes go straight to the bucket; the
// server only signs requests and records metadata.
type FileHandlers struct {
	store  FileStore
	blobs  Presigner
	logger *slog.Logger
}

// NewFileHandlers creates file handlers. A nil presigner answers 503.
func NewFileHandlers(s FileStore, blobs Presigner, logger *slog.Logger) *FileHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileHandlers{store: s, blobs: blobs, logger: logger.With("component", "files_api")}
}

// RegisterRoutes registers the file routes. All of them need a session.
func (h *FileHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/files", func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.logger))
		r.Post("/upload-url", h.CreateUploadURL)
		r.Post("/", h.SaveFile)
		r.Get("/", h.ListFiles)
	})
}

// =============================================================================
// Upload URL
// =============================================================================

type uploadURLRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

// CreateUploadURL signs a PUT for a new object under the caller's prefix.
func (h *FileHandlers) CreateUploadURL(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	var req uploadURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.FileName) == "" || strings.TrimSpace(req.ContentType) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "file_name and content_type are required")
		return
	}

	userID := auth.FromContext(r.Context()).UserID
	signed, err := h.blobs.PresignUpload(r.Context(), blob.NewObjectKey(userID, req.FileName), req.ContentType)
	if err != nil {
		h.logger.Error("failed to sign upload", "user_id", userID, "error", err)
		middleware.WriteError(w, http.StatusBadGateway, "STORAGE_ERROR", "Failed to create upload URL")
		return
	}

	writeJSON(w, http.StatusOK, signed)
}

// =============================================================================
// Save File
// =============================================================================

type saveFileRequest struct {
	ObjectKey   string `json:"object_key"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// SaveFile records metadata for an object the caller has uploaded.
func (h *FileHandlers) SaveFile(w http.ResponseWriter, r *http.Request) {
	var req saveFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}

	userID := auth.FromContext(r.Context()).UserID
	if !blob.OwnsKey(userID, req.ObjectKey) {
		middleware.WriteError(w, http.StatusForbidden, "FORBIDDEN", "Object key was not issued to this user")
		return
	}

	file, err := domain.NewFile(userID, req.ObjectKey, req.FileName, req.ContentType, req.Size)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if err := h.store.CreateFile(r.Context(), file); err != nil {
		if store.IsConflict(err) {
			middleware.WriteError(w, http.StatusConflict, "CONFLICT", "File already recorded")
			return
		}
		h.logger.Error("failed to save file", "user_id", userID, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to save file")
		return
	}

	writeJSON(w, http.StatusCreated, file)
}

// =============================================================================
// List Files
// =============================================================================

type fileResponse struct {
	FileName  string    `json:"file_name"`
	URL       string    `json:"url"`
	ObjectKey string    `json:"object_key"`
	IsPublic  bool      `json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
}

// ListFiles returns the caller's files, newest first, each with a signed
// download URL. Files whose URL cannot be signed are left out.
func (h *FileHandlers) ListFiles(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	ctx := r.Context()
	authCtx := auth.FromContext(ctx)

	files, err := h.store.ListFilesByUser(ctx, authCtx.UserID, store.DefaultListOptions())
	if err != nil {
		h.logger.Error("failed to list files", "user_id", authCtx.UserID, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list files")
		return
	}

	result := make([]fileResponse, 0, len(files))
	for _, f := range files {
		if !auth.CanViewFile(authCtx, f) {
			continue
		}
		url, err := h.blobs.PresignDownload(ctx, f.ObjectKey)
		if err != nil || url == "" {
			h.logger.Warn("skipping file without download URL", "file_id", f.ID, "error", err)
			continue
		}
		result = append(result, fileResponse{
			FileName:  f.FileName,
			URL:       url,
			ObjectKey: f.ObjectKey,
			IsPublic:  f.IsPublic,
			CreatedAt: f.CreatedAt,
			Size:      f.Size,
		})
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *FileHandlers) available(w http.ResponseWriter) bool {
	if h.blobs == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "File storage is not configured")
		return false
	}
	return true
}
