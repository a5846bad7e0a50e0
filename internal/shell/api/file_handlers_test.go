package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/artpar/pagehost/internal/core/auth"
	"github.com/artpar/pagehost/internal/core/domain"
	"github.com/artpar/pagehost/internal/shell/blob"
	"github.com/artpar/pagehost/internal/shell/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePresigner signs nothing; URLs are derived from the key.
type fakePresigner struct {
	failUpload bool
	failKeys   map[string]bool
}

func (p *fakePresigner) PresignUpload(ctx context.Context, key, contentType string) (*blob.PresignedRequest, error) {
	if p.failUpload {
		return nil, errors.New("signer offline")
	}
	return &blob.PresignedRequest{
		URL:       "https://bucket.test/" + key + "?sig=put",
		Method:    http.MethodPut,
		Headers:   map[string]string{"Content-Type": contentType},
		ObjectKey: key,
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}, nil
}

func (p *fakePresigner) PresignDownload(ctx context.Context, key string) (string, error) {
	if p.failKeys[key] {
		return "", errors.New("no such key")
	}
	return "https://bucket.test/" + key + "?sig=get", nil
}

type fileFixture struct {
	router http.Handler
	store  *store.SQLiteStore
}

func setupFiles(t *testing.T, presigner Presigner) *fileFixture {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	r := chi.NewRouter()
	NewFileHandlers(s, presigner, nil).RegisterRoutes(r)
	return &fileFixture{router: r, store: s}
}

func (f *fileFixture) do(method, path, body, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req = req.WithContext(auth.WithContext(req.Context(), auth.Authenticated(userID, "sess")))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateUploadURL(t *testing.T) {
	f := setupFiles(t, &fakePresigner{})

	rec := f.do(http.MethodPost, "/api/files/upload-url", `{"file_name":"Logo.PNG","content_type":"image/png"}`, "user_1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var signed blob.PresignedRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signed))
	assert.Equal(t, http.MethodPut, signed.Method)
	assert.True(t, strings.HasPrefix(signed.ObjectKey, "user_1/"))
	assert.True(t, strings.HasSuffix(signed.ObjectKey, ".png"))

	rec = f.do(http.MethodPost, "/api/files/upload-url", `{"file_name":"logo.png"}`, "user_1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/files/upload-url", `{"file_name":"logo.png","content_type":"image/png"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateUploadURL_SignerFailure(t *testing.T) {
	f := setupFiles(t, &fakePresigner{failUpload: true})

	rec := f.do(http.MethodPost, "/api/files/upload-url", `{"file_name":"logo.png","content_type":"image/png"}`, "user_1")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "STORAGE_ERROR", errorCode(t, rec))
}

func TestFiles_Unconfigured(t *testing.T) {
	f := setupFiles(t, nil)

	rec := f.do(http.MethodGet, "/api/files", "", "user_1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "STORAGE_UNAVAILABLE", errorCode(t, rec))
}

func TestSaveFile(t *testing.T) {
	f := setupFiles(t, &fakePresigner{})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"ok", `{"object_key":"user_1/a.png","file_name":"a.png","content_type":"image/png","size":10}`, http.StatusCreated},
		{"already recorded", `{"object_key":"user_1/a.png","file_name":"a.png","content_type":"image/png","size":10}`, http.StatusConflict},
		{"foreign key prefix", `{"object_key":"user_2/a.png","file_name":"a.png","content_type":"image/png","size":10}`, http.StatusForbidden},
		{"traversal", `{"object_key":"user_1/../user_2/a.png","file_name":"a.png","content_type":"image/png","size":10}`, http.StatusForbidden},
		{"zero size", `{"object_key":"user_1/b.png","file_name":"b.png","content_type":"image/png","size":0}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/files", tt.body, "user_1")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	files, err := f.store.ListFilesByUser(context.Background(), "user_1", store.DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "user_1/a.png", files[0].ObjectKey)
}

func TestListFiles(t *testing.T) {
	presigner := &fakePresigner{failKeys: map[string]bool{"user_1/broken.png": true}}
	f := setupFiles(t, presigner)

	ctx := context.Background()
	for _, key := range []string{"user_1/a.png", "user_1/broken.png", "user_2/c.png"} {
		owner := strings.SplitN(key, "/", 2)[0]
		file, err := domain.NewFile(owner, key, key[len(owner)+1:], "image/png", 42)
		require.NoError(t, err)
		require.NoError(t, f.store.CreateFile(ctx, file))
	}

	rec := f.do(http.MethodGet, "/api/files", "", "user_1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var listed []fileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "a.png", listed[0].FileName)
	assert.Equal(t, "https://bucket.test/user_1/a.png?sig=get", listed[0].URL)
	assert.EqualValues(t, 42, listed[0].Size)
}
