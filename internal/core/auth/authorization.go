package auth

import (
	"github.com/artpar/pagehost/internal/core/domain"
)

// =============================================================================
// Page Authorization
// =============================================================================

// CanViewPage checks if the user can read a page through the editor API.
// Public visitors read pages through the site handler, not through here.
func CanViewPage(ctx Context, page domain.Page) bool {
	return ctx.Authenticated && ctx.UserID == page.UserID
}

// CanManagePage checks if the user can mutate or delete a page, including
// its sections and custom domain. Only the owner can.
func CanManagePage(ctx Context, page domain.Page) bool {
	return ctx.Authenticated && ctx.UserID == page.UserID
}

// CanCreatePage checks if the user can create pages.
func CanCreatePage(ctx Context) bool {
	return ctx.Authenticated
}

// =============================================================================
// File Authorization
// =============================================================================

// CanViewFile checks if the user can see a file.
func CanViewFile(ctx Context, file domain.File) bool {
	if file.IsPublic {
		return true
	}
	return ctx.Authenticated && ctx.UserID == file.UserID
}

// =============================================================================
// Generic Helpers
// =============================================================================

// RequireAuthentication checks if the context is authenticated.
// Returns (true, "") if authenticated, or (false, "authentication required") if not.
func RequireAuthentication(ctx Context) (bool, string) {
	if !ctx.Authenticated {
		return false, "authentication required"
	}
	return true, ""
}
