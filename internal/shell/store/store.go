package store

import (
	"context"

	"github.com/artpar/pagehost/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for tenant records.
type Store interface {
	// Page operations
	CreatePage(ctx context.Context, page *domain.Page) error
	GetPage(ctx context.Context, id string) (*domain.Page, error)
	GetPageBySlug(ctx context.Context, slug string) (*domain.Page, error)
	GetPageByCustomDomain(ctx context.Context, hostname string) (*domain.Page, error)
	UpdatePage(ctx context.Context, page *domain.Page) error
	DeletePage(ctx context.Context, id string) error
	ListPagesByUser(ctx context.Context, userID string, opts ListOptions) ([]domain.Page, error)
	ListPagesWithCustomDomain(ctx context.Context, opts ListOptions) ([]domain.Page, error)

	// SetCustomDomain sets or clears (hostname == nil) the custom domain of
	// the page addressed by slug and returns the updated page.
	SetCustomDomain(ctx context.Context, slug string, hostname *string) (*domain.Page, error)

	// Section operations
	CreateSection(ctx context.Context, section *domain.Section) error
	GetSection(ctx context.Context, id string) (*domain.Section, error)
	UpdateSection(ctx context.Context, section *domain.Section) error
	DeleteSection(ctx context.Context, id string) error
	ListSectionsByPage(ctx context.Context, pageID string) ([]domain.Section, error)
	ReorderSections(ctx context.Context, pageID string, order []domain.SectionOrder) error

	// File operations
	CreateFile(ctx context.Context, file *domain.File) error
	ListFilesByUser(ctx context.Context, userID string, opts ListOptions) ([]domain.File, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination and filtering options.
type ListOptions struct {
	Limit  int
	Offset int
	Query  string // case-insensitive substring match on title or slug
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
