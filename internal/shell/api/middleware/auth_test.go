package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/artpar/pagehost/internal/core/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

var testSecret = []byte("test-session-secret")

// testHandler is a simple handler that returns the auth context from request.
func testHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"authenticated": ctx.Authenticated,
			"user_id":       ctx.UserID,
			"session_id":    ctx.SessionID,
		})
	})
}

func decodeAuth(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func signed(t *testing.T, userID string) string {
	t.Helper()
	token, err := SignSession(testSecret, "", userID, "sess_1", time.Hour)
	require.NoError(t, err)
	return token
}

// =============================================================================
// AuthMiddleware Tests
// =============================================================================

func TestAuthMiddleware_BearerToken(t *testing.T) {
	mw := NewAuthMiddleware(AuthConfig{Secret: testSecret})

	req := httptest.NewRequest("GET", "/api/v1/pages", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, "user_123"))
	rec := httptest.NewRecorder()

	mw.Handler(testHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAuth(t, rec)
	assert.Equal(t, true, resp["authenticated"])
	assert.Equal(t, "user_123", resp["user_id"])
	assert.Equal(t, "sess_1", resp["session_id"])
}

func TestAuthMiddleware_SessionCookie(t *testing.T) {
	mw := NewAuthMiddleware(AuthConfig{Secret: testSecret})

	req := httptest.NewRequest("GET", "/pages", nil)
	req.AddCookie(&http.Cookie{Name: auth.DefaultSessionCookie, Value: signed(t, "user_cookie")})
	rec := httptest.NewRecorder()

	mw.Handler(testHandler()).ServeHTTP(rec, req)

	resp := decodeAuth(t, rec)
	assert.Equal(t, true, resp["authenticated"])
	assert.Equal(t, "user_cookie", resp["user_id"])
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	mw := NewAuthMiddleware(AuthConfig{Secret: testSecret})

	req := httptest.NewRequest("GET", "/api/v1/pages", nil)
	rec := httptest.NewRecorder()

	mw.Handler(testHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeAuth(t, rec)["authenticated"])
}

func TestAuthMiddleware_RejectedTokensAreAnonymous(t *testing.T) {
	expired, err := SignSession(testSecret, "", "user_123", "", -time.Minute)
	require.NoError(t, err)

	wrongKey, err := SignSession([]byte("other-secret"), "", "user_123", "", time.Hour)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user_123"}).
		SignedString(testSecret)
	require.NoError(t, err)

	noSubject, err := SignSession(testSecret, "", "", "", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong key", wrongKey},
		{"no expiry", noExpiry},
		{"no subject", noSubject},
		{"garbage", "not-a-jwt"},
	}

	mw := NewAuthMiddleware(AuthConfig{Secret: testSecret})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/pages", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rec := httptest.NewRecorder()

			mw.Handler(testHandler()).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, false, decodeAuth(t, rec)["authenticated"])
		})
	}
}

func TestAuthMiddleware_Issuer(t *testing.T) {
	mw := NewAuthMiddleware(AuthConfig{Secret: testSecret, Issuer: "https://clerk.example.com"})

	good, err := SignSession(testSecret, "https://clerk.example.com", "user_1", "", time.Hour)
	require.NoError(t, err)
	_, err = mw.Verify(good)
	assert.NoError(t, err)

	bad, err := SignSession(testSecret, "https://evil.example.com", "user_1", "", time.Hour)
	require.NoError(t, err)
	_, err = mw.Verify(bad)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthMiddleware_RejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user_1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	mw := NewAuthMiddleware(AuthConfig{Secret: testSecret})
	_, err = mw.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthMiddleware_MissingSecret(t *testing.T) {
	mw := NewAuthMiddleware(AuthConfig{})
	_, err := mw.Verify("anything")
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = SignSession(nil, "", "user_1", "", time.Hour)
	assert.ErrorIs(t, err, ErrMissingSecret)
}

// =============================================================================
// RequireAuth Middleware Tests
// =============================================================================

func TestRequireAuth_Authenticated(t *testing.T) {
	authMW := NewAuthMiddleware(AuthConfig{Secret: testSecret})
	handler := authMW.Handler(RequireAuth(nil)(testHandler()))

	req := httptest.NewRequest("GET", "/api/domain/verify", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, "user_123"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth_Unauthenticated(t *testing.T) {
	authMW := NewAuthMiddleware(AuthConfig{Secret: testSecret})
	handler := authMW.Handler(RequireAuth(nil)(testHandler()))

	req := httptest.NewRequest("GET", "/api/domain/verify", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "UNAUTHORIZED")
	assert.Contains(t, string(body), "Authentication required")
}

// =============================================================================
// JSON Error Response Tests
// =============================================================================

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, "INVALID_REQUEST", "Invalid domain")

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_REQUEST", resp.Error.Code)
	assert.Equal(t, "Invalid domain", resp.Error.Message)
}
