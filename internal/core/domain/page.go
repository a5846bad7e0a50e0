// Package domain contains the core tenant types and validation logic.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// Slug validation errors
	ErrSlugRequired     = errors.New("slug is required")
	ErrSlugTooLong      = errors.New("slug must be at most 63 characters")
	ErrSlugInvalidChars = errors.New("slug can only contain alphanumeric characters and hyphens")
	ErrSlugReserved     = errors.New("slug is reserved")

	// Title validation errors
	ErrTitleRequired = errors.New("title is required")
	ErrTitleTooLong  = errors.New("title must be at most 200 characters")

	// Section validation errors
	ErrSectionTypeRequired = errors.New("section type is required")

	// File validation errors
	ErrFileNameRequired    = errors.New("file name is required")
	ErrContentTypeRequired = errors.New("content type is required")
	ErrFileSizeInvalid     = errors.New("file size must be positive")
)

const (
	MaxSlugLength  = 63
	MaxTitleLength = 200
)

// =============================================================================
// Page
// =============================================================================

// Page is a tenant's landing page. Styling and Settings are opaque to the
// server and stored as raw JSON.
type Page struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Slug         string          `json:"slug"`
	Title        string          `json:"title"`
	Styling      json.RawMessage `json:"styling,omitempty"`
	Settings     json.RawMessage `json:"settings,omitempty"`
	CustomDomain *string         `json:"custom_domain"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewPage creates a new page owned by userID.
func NewPage(userID, slug, title string) (*Page, error) {
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}
	if err := ValidateTitle(title); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Page{
		ID:        "page_" + uuid.New().String()[:8],
		UserID:    userID,
		Slug:      slug,
		Title:     strings.TrimSpace(title),
		Styling:   json.RawMessage(`{}`),
		Settings:  json.RawMessage(`{}`),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Domain returns the custom domain or "" when none is set.
func (p *Page) Domain() string {
	if p.CustomDomain == nil {
		return ""
	}
	return *p.CustomDomain
}

// Path is the slug-addressed path of the page's public content.
func (p *Page) Path() string {
	return "/" + p.Slug
}

// ValidateTitle checks that a title is present and of reasonable length.
func ValidateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrTitleRequired
	}
	if len(title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	return nil
}

// =============================================================================
// PageUpdate
// =============================================================================

// PageUpdate is a partial update. Nil fields are left untouched.
// ClearDomain sets the custom domain back to null.
type PageUpdate struct {
	Slug         *string
	Title        *string
	Styling      json.RawMessage
	Settings     json.RawMessage
	CustomDomain *string
	ClearDomain  bool
}

// IsEmpty reports whether the update changes nothing.
func (u PageUpdate) IsEmpty() bool {
	return u.Slug == nil && u.Title == nil && u.Styling == nil && u.Settings == nil &&
		u.CustomDomain == nil && !u.ClearDomain
}

// Apply validates the update and applies it to the page.
func (u PageUpdate) Apply(p *Page) error {
	if u.Slug != nil {
		if err := ValidateSlug(*u.Slug); err != nil {
			return err
		}
		p.Slug = *u.Slug
	}
	if u.Title != nil {
		if err := ValidateTitle(*u.Title); err != nil {
			return err
		}
		p.Title = strings.TrimSpace(*u.Title)
	}
	if u.Styling != nil {
		p.Styling = u.Styling
	}
	if u.Settings != nil {
		p.Settings = u.Settings
	}
	switch {
	case u.ClearDomain:
		p.CustomDomain = nil
	case u.CustomDomain != nil:
		d := *u.CustomDomain
		p.CustomDomain = &d
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// =============================================================================
// Section
// =============================================================================

// Section is an ordered content block of a page.
type Section struct {
	ID         string          `json:"id"`
	PageID     string          `json:"page_id"`
	Type       string          `json:"type"`
	Content    json.RawMessage `json:"content"`
	OrderIndex int             `json:"order_index"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewSection creates a section for pageID. An orderIndex of zero means
// "append"; the store assigns the next position.
func NewSection(pageID, sectionType string, content json.RawMessage, orderIndex int) (*Section, error) {
	if strings.TrimSpace(sectionType) == "" {
		return nil, ErrSectionTypeRequired
	}
	if content == nil {
		content = json.RawMessage(`{}`)
	}

	now := time.Now().UTC()
	return &Section{
		ID:         "sec_" + uuid.New().String()[:8],
		PageID:     pageID,
		Type:       sectionType,
		Content:    content,
		OrderIndex: orderIndex,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// SectionOrder moves a single section to a new position.
type SectionOrder struct {
	SectionID  string `json:"section_id"`
	OrderIndex int    `json:"order_index"`
}

// NextOrderIndex returns the position after the last section, starting at 1.
func NextOrderIndex(sections []Section) int {
	next := 1
	for _, s := range sections {
		if s.OrderIndex >= next {
			next = s.OrderIndex + 1
		}
	}
	return next
}

// =============================================================================
// File
// =============================================================================

// File is the metadata row for an uploaded blob.
type File struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ObjectKey   string    `json:"object_key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	IsPublic    bool      `json:"is_public"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewFile creates file metadata for an object already uploaded under objectKey.
func NewFile(userID, objectKey, fileName, contentType string, size int64) (*File, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, ErrFileNameRequired
	}
	if strings.TrimSpace(contentType) == "" {
		return nil, ErrContentTypeRequired
	}
	if size <= 0 {
		return nil, ErrFileSizeInvalid
	}

	return &File{
		ID:          "file_" + uuid.New().String()[:8],
		UserID:      userID,
		ObjectKey:   objectKey,
		FileName:    fileName,
		ContentType: contentType,
		Size:        size,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
