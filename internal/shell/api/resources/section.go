package resources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/artpar/pagehost/internal/core/auth"
	"github.com/artpar/pagehost/internal/core/domain"
	"github.com/artpar/pagehost/internal/shell/store"
	"github.com/manyminds/api2go"
	"github.com/manyminds/api2go/jsonapi"
)

// =============================================================================
// Section JSON:API Model
// =============================================================================

// Section wraps domain.Section to implement JSON:API interfaces.
type Section struct {
	ID         string          `json:"-"`
	PageID     string          `json:"page_id"`
	Type       string          `json:"section_type"`
	Content    json.RawMessage `json:"content,omitempty"`
	OrderIndex int             `json:"order_index"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// GetID returns the section ID for JSON:API.
func (s Section) GetID() string {
	return s.ID
}

// SetID sets the section ID for JSON:API.
func (s *Section) SetID(id string) error {
	s.ID = id
	return nil
}

// GetName returns the JSON:API resource type name.
func (s Section) GetName() string {
	return "sections"
}

// GetReferences returns the relationships this resource has.
func (s Section) GetReferences() []jsonapi.Reference {
	return []jsonapi.Reference{
		{
			Type:         "pages",
			Name:         "page",
			Relationship: jsonapi.ToOneRelationship,
		},
	}
}

// GetReferencedIDs returns the parent page.
func (s Section) GetReferencedIDs() []jsonapi.ReferenceID {
	if s.PageID == "" {
		return nil
	}
	return []jsonapi.ReferenceID{
		{
			ID:           s.PageID,
			Type:         "pages",
			Name:         "page",
			Relationship: jsonapi.ToOneRelationship,
		},
	}
}

// GetReferencedStructs returns nil; the page is not included.
func (s Section) GetReferencedStructs() []jsonapi.MarshalIdentifier {
	return nil
}

// SetToOneReferenceID accepts the page relationship as an alternative to
// the page_id attribute.
func (s *Section) SetToOneReferenceID(name, id string) error {
	if name != "page" {
		return fmt.Errorf("unknown relationship %q", name)
	}
	if id != "" {
		s.PageID = id
	}
	return nil
}

// SectionFromDomain converts a domain.Section to a JSON:API Section.
func SectionFromDomain(s *domain.Section) Section {
	return Section{
		ID:         s.ID,
		PageID:     s.PageID,
		Type:       s.Type,
		Content:    s.Content,
		OrderIndex: s.OrderIndex,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

// =============================================================================
// SectionResource - CRUD Operations
// =============================================================================

// SectionResource implements the api2go resource interface for sections.
// Access is decided by the parent page.
type SectionResource struct {
	Store       store.Store
	Invalidator Invalidator
	Logger      *slog.Logger
}

// NewSectionResource creates a new section resource handler.
func NewSectionResource(s store.Store, inv Invalidator, logger *slog.Logger) *SectionResource {
	if inv == nil {
		inv = noopInvalidator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SectionResource{
		Store:       s,
		Invalidator: inv,
		Logger:      logger.With("component", "sections"),
	}
}

// FindAll lists the sections of one page in display order.
// GET /api/v1/sections?filter[page_id]=
func (r SectionResource) FindAll(req api2go.Request) (api2go.Responder, error) {
	ctx := req.PlainRequest.Context()

	pageID := firstParam(req.QueryParams, "filter[page_id]")
	if pageID == "" {
		// Set by api2go for /pages/{id}/sections.
		pageID = firstParam(req.QueryParams, "pagesID")
	}
	if pageID == "" {
		return httpError(http.StatusBadRequest, "filter[page_id] is required")
	}

	if _, resp, err := r.page(ctx, pageID, false); err != nil {
		return resp, err
	}

	sections, err := r.Store.ListSectionsByPage(ctx, pageID)
	if err != nil {
		return &Response{Code: http.StatusInternalServerError}, err
	}

	result := make([]Section, 0, len(sections))
	for i := range sections {
		result = append(result, SectionFromDomain(&sections[i]))
	}

	return &Response{
		Code: http.StatusOK,
		Res:  result,
		Meta: map[string]interface{}{"total": len(result)},
	}, nil
}

// FindOne returns a single section by ID.
// GET /api/v1/sections/{id}
func (r SectionResource) FindOne(id string, req api2go.Request) (api2go.Responder, error) {
	ctx := req.PlainRequest.Context()

	section, _, resp, err := r.load(ctx, id, false)
	if err != nil {
		return resp, err
	}

	return &Response{
		Code: http.StatusOK,
		Res:  SectionFromDomain(section),
	}, nil
}

// Create appends a section to a page unless order_index is given.
// POST /api/v1/sections
func (r SectionResource) Create(obj interface{}, req api2go.Request) (api2go.Responder, error) {
	ctx := req.PlainRequest.Context()

	in, ok := obj.(Section)
	if !ok {
		return httpError(http.StatusBadRequest, "Invalid request body")
	}
	if in.PageID == "" {
		return httpError(http.StatusBadRequest, "page_id is required")
	}

	page, resp, err := r.page(ctx, in.PageID, true)
	if err != nil {
		return resp, err
	}

	section, err := domain.NewSection(page.ID, in.Type, nonNullJSON(in.Content), in.OrderIndex)
	if err != nil {
		return httpError(http.StatusBadRequest, err.Error())
	}

	if err := r.Store.CreateSection(ctx, section); err != nil {
		if errors.Is(err, store.ErrForeignKey) {
			return httpError(http.StatusNotFound, "Page not found")
		}
		return &Response{Code: http.StatusInternalServerError}, err
	}

	r.Invalidator.Invalidate(page.Path())

	return &Response{
		Code: http.StatusCreated,
		Res:  SectionFromDomain(section),
	}, nil
}

// Update changes a section's type, content or position.
// PATCH /api/v1/sections/{id}
func (r SectionResource) Update(obj interface{}, req api2go.Request) (api2go.Responder, error) {
	ctx := req.PlainRequest.Context()

	in, ok := obj.(Section)
	if !ok {
		return httpError(http.StatusBadRequest, "Invalid request body")
	}

	existing, page, resp, err := r.load(ctx, in.ID, true)
	if err != nil {
		return resp, err
	}
	if in.PageID != existing.PageID {
		return httpError(http.StatusBadRequest, "Sections cannot move between pages")
	}

	changed := false
	if in.Type != existing.Type {
		if in.Type == "" {
			return httpError(http.StatusBadRequest, domain.ErrSectionTypeRequired.Error())
		}
		existing.Type = in.Type
		changed = true
	}
	if raw := nonNullJSON(in.Content); raw != nil && !bytes.Equal(raw, existing.Content) {
		existing.Content = raw
		changed = true
	}
	if in.OrderIndex != existing.OrderIndex {
		existing.OrderIndex = in.OrderIndex
		changed = true
	}

	if changed {
		existing.UpdatedAt = time.Now().UTC()
		if err := r.Store.UpdateSection(ctx, existing); err != nil {
			return &Response{Code: http.StatusInternalServerError}, err
		}
		r.Invalidator.Invalidate(page.Path())
	}

	return &Response{
		Code: http.StatusOK,
		Res:  SectionFromDomain(existing),
	}, nil
}

// Delete removes a section.
// DELETE /api/v1/sections/{id}
func (r SectionResource) Delete(id string, req api2go.Request) (api2go.Responder, error) {
	ctx := req.PlainRequest.Context()

	_, page, resp, err := r.load(ctx, id, true)
	if err != nil {
		return resp, err
	}

	if err := r.Store.DeleteSection(ctx, id); err != nil {
		if isNotFound(err) {
			return httpError(http.StatusNotFound, "Section not found")
		}
		return &Response{Code: http.StatusInternalServerError}, err
	}

	r.Invalidator.Invalidate(page.Path())
	return &Response{Code: http.StatusNoContent}, nil
}

// =============================================================================
// Custom Actions - Reorder
// =============================================================================

// ReorderSections moves sections of a page to new positions. Entries naming
// sections of other pages are skipped.
// POST /api/v1/pages/{id}/sections/reorder
func (r SectionResource) ReorderSections(pageID string, req *http.Request) (api2go.Responder, error) {
	ctx := req.Context()

	page, resp, err := r.page(ctx, pageID, true)
	if err != nil {
		return resp, err
	}

	var order []domain.SectionOrder
	if err := json.NewDecoder(req.Body).Decode(&order); err != nil {
		return httpError(http.StatusBadRequest, "Body must be a list of {section_id, order_index}")
	}

	if err := r.Store.ReorderSections(ctx, page.ID, order); err != nil {
		return &Response{Code: http.StatusInternalServerError}, err
	}
	r.Invalidator.Invalidate(page.Path())

	sections, err := r.Store.ListSectionsByPage(ctx, page.ID)
	if err != nil {
		return &Response{Code: http.StatusInternalServerError}, err
	}
	result := make([]Section, 0, len(sections))
	for i := range sections {
		result = append(result, SectionFromDomain(&sections[i]))
	}

	return &Response{Code: http.StatusOK, Res: result}, nil
}

// =============================================================================
// Access Helpers
// =============================================================================

// page loads the parent page. manage selects CanManagePage over CanViewPage.
func (r SectionResource) page(ctx context.Context, pageID string, manage bool) (*domain.Page, api2go.Responder, error) {
	authCtx := auth.FromContext(ctx)
	if !authCtx.Authenticated {
		resp, err := unauthorized()
		return nil, resp, err
	}

	page, err := r.Store.GetPage(ctx, pageID)
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
	if manage && !auth.CanManagePage(authCtx, *page) {
		resp, err := httpError(http.StatusForbidden, "Not authorized to modify this page")
		return nil, resp, err
	}
	return page, nil, nil
}

func (r SectionResource) load(ctx context.Context, id string, manage bool) (*domain.Section, *domain.Page, api2go.Responder, error) {
	if !auth.FromContext(ctx).Authenticated {
		resp, err := unauthorized()
		return nil, nil, resp, err
	}

	section, err := r.Store.GetSection(ctx, id)
	if err != nil {
		if isNotFound(err) {
			resp, err := httpError(http.StatusNotFound, "Section not found")
			return nil, nil, resp, err
		}
		return nil, nil, &Response{Code: http.StatusInternalServerError}, err
	}

	page, resp, err := r.page(ctx, section.PageID, manage)
	if err != nil {
		if resp != nil && resp.StatusCode() == http.StatusNotFound {
			resp, err = httpError(http.StatusNotFound, "Section not found")
		}
		return nil, nil, resp, err
	}
	return section, page, nil, nil
}
