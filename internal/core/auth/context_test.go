package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Constructor Tests
// =============================================================================

func TestAuthenticated(t *testing.T) {
	ctx := Authenticated("user_1", "sess_1")
	assert.True(t, ctx.Authenticated)
	assert.Equal(t, "user_1", ctx.UserID)
	assert.Equal(t, "sess_1", ctx.SessionID)
}

func TestAuthenticated_EmptyUser(t *testing.T) {
	ctx := Authenticated("", "sess_1")
	assert.False(t, ctx.Authenticated)
}

// =============================================================================
// Token Extraction Tests
// =============================================================================

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{"standard", "Bearer abc.def.ghi", "abc.def.ghi"},
		{"lowercase scheme", "bearer tok", "tok"},
		{"extra spaces", "Bearer   tok  ", "tok"},
		{"basic scheme", "Basic dXNlcjpwYXNz", ""},
		{"empty", "", ""},
		{"scheme only", "Bearer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BearerToken(tt.header))
		})
	}
}

func TestTokenFromHeaders(t *testing.T) {
	headers := MapHeaderGetter{HeaderAuthorization: "Bearer xyz"}
	assert.Equal(t, "xyz", TokenFromHeaders(headers))
	assert.Equal(t, "", TokenFromHeaders(MapHeaderGetter{}))
}

func TestTokenFromRequest_HeaderWins(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: "from-cookie"})

	assert.Equal(t, "from-header", TokenFromRequest(req, ""))
}

func TestTokenFromRequest_CookieFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "from-cookie"})

	assert.Equal(t, "from-cookie", TokenFromRequest(req, "sid"))
	assert.Equal(t, "", TokenFromRequest(req, ""))
}

// =============================================================================
// Context Storage Tests
// =============================================================================

func TestWithContext_FromContext(t *testing.T) {
	authCtx := Authenticated("user_42", "")
	ctx := WithContext(context.Background(), authCtx)

	assert.Equal(t, authCtx, FromContext(ctx))
}

func TestFromContext_Missing(t *testing.T) {
	ctx := FromContext(context.Background())
	assert.False(t, ctx.Authenticated)
	assert.Empty(t, ctx.UserID)
}
