package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Page Tests
// =============================================================================

func TestNewPage_ValidInput(t *testing.T) {
	page, err := NewPage("user_1", "summer-sale", "  Summer Sale ")
	require.NoError(t, err)

	assert.Contains(t, page.ID, "page_")
	assert.Equal(t, "user_1", page.UserID)
	assert.Equal(t, "summer-sale", page.Slug)
	assert.Equal(t, "Summer Sale", page.Title)
	assert.Nil(t, page.CustomDomain)
	assert.Equal(t, "", page.Domain())
	assert.Equal(t, "/summer-sale", page.Path())
	assert.JSONEq(t, `{}`, string(page.Styling))
	assert.NotZero(t, page.CreatedAt)
}

func TestNewPage_InvalidSlug(t *testing.T) {
	_, err := NewPage("user_1", "bad slug", "Title")
	assert.ErrorIs(t, err, ErrSlugInvalidChars)

	_, err = NewPage("user_1", "leads", "Title")
	assert.ErrorIs(t, err, ErrSlugReserved)
}

func TestNewPage_MissingTitle(t *testing.T) {
	_, err := NewPage("user_1", "ok", "   ")
	assert.ErrorIs(t, err, ErrTitleRequired)
}

func TestPageUpdate_Apply(t *testing.T) {
	page, err := NewPage("user_1", "old", "Old")
	require.NoError(t, err)

	slug := "new"
	title := "New"
	domain := "example.com"
	upd := PageUpdate{
		Slug:         &slug,
		Title:        &title,
		Settings:     json.RawMessage(`{"lang":"de"}`),
		CustomDomain: &domain,
	}
	require.NoError(t, upd.Apply(page))

	assert.Equal(t, "new", page.Slug)
	assert.Equal(t, "New", page.Title)
	assert.JSONEq(t, `{"lang":"de"}`, string(page.Settings))
	assert.JSONEq(t, `{}`, string(page.Styling))
	assert.Equal(t, "example.com", page.Domain())
}

func TestPageUpdate_ClearDomain(t *testing.T) {
	page, err := NewPage("user_1", "p", "P")
	require.NoError(t, err)
	d := "example.com"
	page.CustomDomain = &d

	require.NoError(t, PageUpdate{ClearDomain: true}.Apply(page))
	assert.Nil(t, page.CustomDomain)
}

func TestPageUpdate_InvalidSlugLeavesPage(t *testing.T) {
	page, err := NewPage("user_1", "keep", "Keep")
	require.NoError(t, err)

	bad := "no way"
	err = PageUpdate{Slug: &bad}.Apply(page)
	assert.ErrorIs(t, err, ErrSlugInvalidChars)
	assert.Equal(t, "keep", page.Slug)
}

func TestPageUpdate_IsEmpty(t *testing.T) {
	assert.True(t, PageUpdate{}.IsEmpty())
	assert.False(t, PageUpdate{ClearDomain: true}.IsEmpty())
}

// =============================================================================
// Section Tests
// =============================================================================

func TestNewSection(t *testing.T) {
	s, err := NewSection("page_1", "hero", nil, 0)
	require.NoError(t, err)
	assert.Contains(t, s.ID, "sec_")
	assert.JSONEq(t, `{}`, string(s.Content))

	_, err = NewSection("page_1", " ", nil, 0)
	assert.ErrorIs(t, err, ErrSectionTypeRequired)
}

func TestNextOrderIndex(t *testing.T) {
	assert.Equal(t, 1, NextOrderIndex(nil))
	assert.Equal(t, 4, NextOrderIndex([]Section{{OrderIndex: 1}, {OrderIndex: 3}, {OrderIndex: 2}}))
}

// =============================================================================
// File Tests
// =============================================================================

func TestNewFile(t *testing.T) {
	f, err := NewFile("user_1", "user_1/abc.png", "abc.png", "image/png", 1024)
	require.NoError(t, err)
	assert.Contains(t, f.ID, "file_")
	assert.False(t, f.IsPublic)

	_, err = NewFile("user_1", "k", "", "image/png", 1)
	assert.ErrorIs(t, err, ErrFileNameRequired)
	_, err = NewFile("user_1", "k", "a.png", "", 1)
	assert.ErrorIs(t, err, ErrContentTypeRequired)
	_, err = NewFile("user_1", "k", "a.png", "image/png", 0)
	assert.ErrorIs(t, err, ErrFileSizeInvalid)
}
