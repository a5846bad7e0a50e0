package domainclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/artpar/pagehost/internal/core/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

type fakeServer struct {
	mu            sync.Mutex
	verifyCalls   int
	patchBodies   []string
	addStatus     int
	patchStatus   int
	verifyStatus  int
	misconfigured bool
	authHeaders   []string
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/domain/add", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
		if f.addStatus != 0 {
			w.WriteHeader(f.addStatus)
			w.Write([]byte(`{"error":{"code":"KV_ERROR","message":"Failed to persist domain mapping"}}`))
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true, "slug": body["slug"], "domain": "www.example.com", "verified": false,
			"dnsRecords": []dns.Record{{Type: "CNAME", Name: "www", Value: dns.DefaultCNAMETarget}},
		})
	})
	mux.HandleFunc("/api/domain/verify", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.verifyCalls++
		if f.verifyStatus != 0 {
			w.WriteHeader(f.verifyStatus)
			w.Write([]byte(`{"error":{"code":"VERCEL_ERROR","message":"upstream failed"}}`))
			return
		}
		records := []dns.Record{}
		if f.misconfigured {
			records = dns.Instructions("www", true, dns.DefaultTargets())
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true, "domain": r.URL.Query().Get("domain"), "verified": !f.misconfigured, "dnsRecords": records,
		})
	})
	mux.HandleFunc("/api/domain/delete", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "domain": "www.example.com", "slug": "acme"})
	})
	mux.HandleFunc("/api/v1/pages/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		raw, _ := io.ReadAll(r.Body)
		f.patchBodies = append(f.patchBodies, string(raw))
		if f.patchStatus != 0 {
			w.WriteHeader(f.patchStatus)
			w.Write([]byte(`{"errors":[{"status":"403","title":"Forbidden","detail":"Not authorized"}]}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":{}}`))
	})
	return mux
}

func (f *fakeServer) verifies() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyCalls
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setup(t *testing.T) (*Client, *fakeServer, *clock) {
	t.Helper()
	fs := &fakeServer{}
	srv := httptest.NewServer(fs.handler())
	t.Cleanup(srv.Close)

	clk := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := New(Config{BaseURL: srv.URL, Token: "tok"}, nil, nil, WithClock(clk.now))
	return c, fs, clk
}

// =============================================================================
// Check / Refresh
// =============================================================================

func TestCheck_ServesFreshCache(t *testing.T) {
	c, fs, clk := setup(t)
	ctx := context.Background()

	st := c.Check(ctx, "www.example.com")
	require.True(t, st.OK())
	assert.True(t, st.Verified)
	assert.False(t, st.FromCache)
	assert.Equal(t, 1, fs.verifies())

	clk.advance(4*time.Minute + 59*time.Second)
	st = c.Check(ctx, "WWW.example.com")
	assert.True(t, st.FromCache)
	assert.True(t, st.Verified)
	assert.Equal(t, 1, fs.verifies())

	clk.advance(time.Second)
	st = c.Check(ctx, "www.example.com")
	assert.False(t, st.FromCache)
	assert.Equal(t, 2, fs.verifies())
}

func TestRefresh_AlwaysCallsServer(t *testing.T) {
	c, fs, _ := setup(t)
	ctx := context.Background()

	c.Check(ctx, "www.example.com")
	c.Refresh(ctx, "www.example.com")
	c.Refresh(ctx, "www.example.com")

	assert.Equal(t, 3, fs.verifies())
}

func TestCheck_ErrorsAreNotCached(t *testing.T) {
	c, fs, _ := setup(t)
	fs.verifyStatus = http.StatusBadGateway

	st := c.Check(context.Background(), "www.example.com")
	require.False(t, st.OK())
	se, ok := st.Failed(StepVerify)
	require.True(t, ok)
	assert.Equal(t, "VERCEL_ERROR", se.Code)

	c.Check(context.Background(), "www.example.com")
	assert.Equal(t, 2, fs.verifies())
}

func TestCheck_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url}, nil, nil)
	st := c.Check(context.Background(), "example.com")

	se, ok := st.Failed(StepVerify)
	require.True(t, ok)
	assert.Equal(t, "NETWORK_ERROR", se.Code)
}

// =============================================================================
// SaveDomain / RemoveDomain
// =============================================================================

func TestSaveDomain(t *testing.T) {
	c, fs, _ := setup(t)
	fs.misconfigured = true

	st := c.SaveDomain(context.Background(), "page_1", "acme", "WWW.Example.com")
	require.True(t, st.OK(), "%v", st.Errors)
	assert.Equal(t, "www.example.com", st.Domain)
	assert.Equal(t, "acme", st.Slug)
	assert.False(t, st.Verified)
	assert.Len(t, st.DNSRecords, 1)

	require.Len(t, fs.patchBodies, 1)
	assert.JSONEq(t,
		`{"data":{"type":"pages","id":"page_1","attributes":{"custom_domain":"www.example.com"}}}`,
		fs.patchBodies[0])
	assert.Equal(t, []string{"Bearer tok"}, fs.authHeaders)

	// The verified result is cached.
	cached := c.Check(context.Background(), "www.example.com")
	assert.True(t, cached.FromCache)
}

func TestSaveDomain_AddFailureStops(t *testing.T) {
	c, fs, _ := setup(t)
	fs.addStatus = http.StatusInternalServerError

	st := c.SaveDomain(context.Background(), "page_1", "acme", "example.com")
	require.Len(t, st.Errors, 1)
	assert.Equal(t, StepError{Step: StepAdd, Code: "KV_ERROR", Message: "Failed to persist domain mapping"}, st.Errors[0])
	assert.Empty(t, fs.patchBodies)
	assert.Equal(t, 0, fs.verifies())
}

func TestSaveDomain_PageUpdateFailureIsPartial(t *testing.T) {
	c, fs, _ := setup(t)
	fs.patchStatus = http.StatusForbidden

	st := c.SaveDomain(context.Background(), "page_1", "acme", "www.example.com")
	require.Len(t, st.Errors, 1)
	se, ok := st.Failed(StepUpdatePage)
	require.True(t, ok)
	assert.Equal(t, "HTTP_403", se.Code)
	assert.Equal(t, "Not authorized", se.Message)

	// Verification still ran.
	assert.Equal(t, 1, fs.verifies())
	assert.True(t, st.Verified)
}

func TestRemoveDomain(t *testing.T) {
	c, fs, _ := setup(t)
	ctx := context.Background()

	c.Check(ctx, "www.example.com")
	st := c.RemoveDomain(ctx, "page_1", "www.example.com")
	require.True(t, st.OK())
	assert.Equal(t, "acme", st.Slug)

	require.Len(t, fs.patchBodies, 1)
	assert.JSONEq(t,
		`{"data":{"type":"pages","id":"page_1","attributes":{"custom_domain":null}}}`,
		fs.patchBodies[0])

	// The cached status is gone.
	c.Check(ctx, "www.example.com")
	assert.Equal(t, 2, fs.verifies())
}

// =============================================================================
// FileCache
// =============================================================================

func TestFileCache_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "domains.yaml")

	c, err := OpenFileCache(path)
	require.NoError(t, err)

	checked := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.Set("example.com", Status{
		Domain:     "example.com",
		Verified:   false,
		DNSRecords: dns.Instructions("", true, dns.DefaultTargets()),
		CheckedAt:  checked,
		Errors:     []StepError{{Step: StepVerify, Code: "X"}},
	}))

	reopened, err := OpenFileCache(path)
	require.NoError(t, err)
	st, ok := reopened.Get("example.com")
	require.True(t, ok)
	assert.Equal(t, "example.com", st.Domain)
	assert.True(t, st.CheckedAt.Equal(checked))
	assert.Len(t, st.DNSRecords, 2)
	assert.Empty(t, st.Errors)

	require.NoError(t, reopened.Delete("example.com"))
	again, err := OpenFileCache(path)
	require.NoError(t, err)
	_, ok = again.Get("example.com")
	assert.False(t, ok)
}

func TestFileCache_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domains.yaml")
	c, err := OpenFileCache(path)
	require.NoError(t, err)
	require.NoError(t, c.Set("a.com", Status{Domain: "a.com"}))

	require.NoError(t, writeFile(path, "domains: [not, a, map"))
	_, err = OpenFileCache(path)
	assert.Error(t, err)
}
