package resources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/artpar/pagehost/internal/core/auth"
	"github.com/artpar/pagehost/internal/core/dns"
	"github.com/artpar/pagehost/internal/core/domain"
	"github.com/artpar/pagehost/internal/shell/store"
	"github.com/manyminds/api2go"
	"github.com/manyminds/api2go/jsonapi"
)

// =============================================================================
// Page JSON:API Model
// =============================================================================

// Page wraps domain.Page to implement JSON:API interfaces.
type Page struct {
	ID           string          `json:"-"`
	Slug         string          `json:"slug"`
	Title        string          `json:"title"`
	Styling      json.RawMessage `json:"styling,omitempty"`
	Settings     json.RawMessage `json:"settings,omitempty"`
	CustomDomain *string         `json:"custom_domain"`
	UserID       string          `json:"user_id"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// GetID returns the page ID for JSON:API.
func (p Page) GetID() string {
	return p.ID
}

// SetID sets the page ID for JSON:API.
func (p *Page) SetID(id string) error {
	p.ID = id
	return nil
}

// GetName returns the JSON:API resource type name.
func (p Page) GetName() string {
	return "pages"
}

// GetReferences returns the relationships this resource has.
func (p Page) GetReferences() []jsonapi.Reference {
	return []jsonapi.Reference{
		{
			Type: "sections",
			Name: "sections",
		},
	}
}

// GetReferencedIDs returns nil; sections are listed with filter[page_id].
func (p Page) GetReferencedIDs() []jsonapi.ReferenceID {
	return nil
}

// GetReferencedStructs returns nil; sections are not included by default.
func (p Page) GetReferencedStructs() []jsonapi.MarshalIdentifier {
	return nil
}

// SetToManyReferenceIDs ignores section linkage; sections are written
// through their own resource.
func (p *Page) SetToManyReferenceIDs(name string, ids []string) error {
	return nil
}

// PageFromDomain converts a domain.Page to a JSON:API Page.
func PageFromDomain(p *domain.Page) Page {
	return Page{
		ID:           p.ID,
		Slug:         p.Slug,
		Title:        p.Title,
		Styling:      p.Styling,
		Settings:     p.Settings,
		CustomDomain: p.CustomDomain,
		UserID:       p.UserID,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// diff returns the partial update that turns existing into p.
func (p Page) diff(existing *domain.Page) domain.PageUpdate {
	var u domain.PageUpdate
	if p.Slug != existing.Slug {
		slug := p.Slug
		u.Slug = &slug
	}
	if p.Title != existing.Title {
		title := p.Title
		u.Title = &title
	}
	if raw := nonNullJSON(p.Styling); raw != nil && !bytes.Equal(raw, existing.Styling) {
		u.Styling = raw
	}
	if raw := nonNullJSON(p.Settings); raw != nil && !bytes.Equal(raw, existing.Settings) {
		u.Settings = raw
	}
	switch {
	case p.CustomDomain == nil && existing.CustomDomain != nil:
		u.ClearDomain = true
	case p.CustomDomain != nil && (existing.CustomDomain == nil || *p.CustomDomain != *existing.CustomDomain):
		d := *p.CustomDomain
		u.CustomDomain = &d
	}
	return u
}

func nonNullJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

// =============================================================================
// PageResource - CRUD Operations
// =============================================================================

// PageReleaser frees the custom domain of a deleted page.
type PageReleaser interface {
	ReleasePage(ctx context.Context, page domain.Page)
}

// PageResource implements the api2go resource interface for pages.
// Every operation is restricted to the signed-in owner.
type PageResource struct {
	Store       store.Store
	Releaser    PageReleaser
	Invalidator Invalidator
	Logger      *slog.Logger
}

// NewPageResource creates a new page resource handler.
func NewPageResource(s store.Store, releaser PageReleaser, inv Invalidator, logger *slog.Logger) *PageResource {
	if inv == nil {
		inv = noopInvalidator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PageResource{
		Store:       s,
		Releaser:    releaser,
		Invalidator: inv,
		Logger:      logger.With("component", "pages"),
	}
}

// FindAll returns the caller's pages, newest first.
// GET /api/v1/pages?filter[q]=
func (r PageResource) FindAll(req api2go.Request) (api2go.Responder, error) {
	ctx := req.PlainRequest.Context()
	authCtx := auth.FromContext(ctx)
	if !authCtx.Authenticated {
		return unauthorized()
	}

	opts := parseListOptions(req.QueryParams)
	opts.Query = firstParam(req.QueryParams, "filter[q]")

	pages, err := r.Store.ListPagesByUser(ctx, authCtx.UserID, opts)
	if err != nil {
		return &Response{Code: http.StatusInternalServerError}, err
	}

	result := make([]Page, 0, len(pages))
	for i := range pages {
		result = append(result, PageFromDomain(&pages[i]))
	}

	return &Response{
		Code: http.StatusOK,
		Res:  result,
		Meta: map[string]interface{}{
			"total":  len(result),
			"limit":  opts.Limit,
			"offset": opts.Offset,
		},
	}, nil
}

// FindOne returns a single page by ID.
// GET /api/v1/pages/{id}
func (r PageResource) FindOne(id string, req api2go.Request) (api2go.Responder, error) {
	ctx := req.PlainRequest.Context()

	page, resp, err := r.loadOwned(ctx, id, auth.CanViewPage)
	if err != nil {
		return resp, err
	}

	return &Response{
		Code: http.StatusOK,
		Res:  PageFromDomain(page),
	}, nil
}

// Create creates a new page owned by the caller.
// POST /api/v1/pages
func (r PageResource) Create(obj interface{}, req api2go.Request) (api2go.Responder, error) {
	ctx := req.PlainRequest.Context()
	authCtx := auth.FromContext(ctx)

	if !auth.CanCreatePage(authCtx) {
		return unauthorized()
	}

	in, ok := obj.(Page)
	if !ok {
		return httpError(http.StatusBadRequest, "Invalid request body")
	}

	page, err := domain.NewPage(authCtx.UserID, in.Slug, in.Title)
	if err != nil {
		return httpError(http.StatusBadRequest, err.Error())
	}
	if raw := nonNullJSON(in.Styling); raw != nil {
		page.Styling = raw
	}
	if raw := nonNullJSON(in.Settings); raw != nil {
		page.Settings = raw
	}

	if err := r.Store.CreatePage(ctx, page); err != nil {
		if errors.Is(err, store.ErrDuplicateSlug) {
			return httpError(http.StatusConflict, "Slug is already taken")
		}
		return &Response{Code: http.StatusInternalServerError}, err
	}

	r.Logger.Info("page created", "page_id", page.ID, "slug", page.Slug, "user_id", page.UserID)
	r.Invalidator.Invalidate(page.Path())

	return &Response{
		Code: http.StatusCreated,
		Res:  PageFromDomain(page),
	}, nil
}

// Update applies the fields that differ from the stored page.
// PATCH /api/v1/pages/{id}
func (r PageResource) Update(obj interface{}, req api2go.Request) (api2go.Responder, error) {
	ctx := req.PlainRequest.Context()

	in, ok := obj.(Page)
	if !ok {
		return httpError(http.StatusBadRequest, "Invalid request body")
	}

	existing, resp, err := r.loadOwned(ctx, in.ID, auth.CanManagePage)
	if err != nil {
		return resp, err
	}

	update := in.diff(existing)
	if update.CustomDomain != nil {
		n, ok := dns.Normalize(*update.CustomDomain)
		if !ok {
			return httpError(http.StatusBadRequest, "Invalid domain")
		}
		update.CustomDomain = &n.Domain
	}

	oldPath := existing.Path()
	if !update.IsEmpty() {
		if err := update.Apply(existing); err != nil {
			return httpError(http.StatusBadRequest, err.Error())
		}
		if err := r.Store.UpdatePage(ctx, existing); err != nil {
			switch {
			case errors.Is(err, store.ErrDuplicateSlug):
				return httpError(http.StatusConflict, "Slug is already taken")
			case errors.Is(err, store.ErrDuplicateDomain):
				return httpError(http.StatusConflict, "Domain is already used by another page")
			}
			return &Response{Code: http.StatusInternalServerError}, err
		}
		r.Invalidator.Invalidate(oldPath, existing.Path())
	}

	return &Response{
		Code: http.StatusOK,
		Res:  PageFromDomain(existing),
	}, nil
}

// Delete removes a page, its sections and the routing of its custom domain.
// DELETE /api/v1/pages/{id}
func (r PageResource) Delete(id string, req api2go.Request) (api2go.Responder, error) {
	ctx := req.PlainRequest.Context()

	page, resp, err := r.loadOwned(ctx, id, auth.CanManagePage)
	if err != nil {
		return resp, err
	}

	if err := r.Store.DeletePage(ctx, id); err != nil {
		if isNotFound(err) {
			return httpError(http.StatusNotFound, "Page not found")
		}
		return &Response{Code: http.StatusInternalServerError}, err
	}

	if page.CustomDomain != nil && r.Releaser != nil {
		r.Releaser.ReleasePage(ctx, *page)
	}
	r.Invalidator.Invalidate(page.Path())
	r.Logger.Info("page deleted", "page_id", page.ID, "slug", page.Slug)

	return &Response{Code: http.StatusNoContent}, nil
}

// loadOwned fetches a page and applies check. Pages the caller may not see
// are reported as not found; pages they may see but not change as forbidden.
func (r PageResource) loadOwned(ctx context.Context, id string, check func(auth.Context, domain.Page) bool) (*domain.Page, api2go.Responder, error) {
	authCtx := auth.FromContext(ctx)
	if !authCtx.Authenticated {
		resp, err := unauthorized()
		return nil, resp, err
	}

	page, err := r.Store.GetPage(ctx, id)
	if err != nil {
		if isNotFound(err) {
			resp, err := httpError(http.StatusNotFound, "Page not found")
			return nil, resp, err
		}
		return nil, &Response{Code: http.StatusInternalServerError}, err
	}

	if !auth.CanViewPage(authCtx, *page) {
		resp, err := httpError(http.StatusNotFound, "Page not found")
		return nil, resp, err
	}
	if !check(authCtx, *page) {
		resp, err := httpError(http.StatusForbidden, "Not authorized to modify this page")
		return nil, resp, err
	}
	return page, nil, nil
}
