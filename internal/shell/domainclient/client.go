// Package domainclient is the editor-side façade over the domain endpoints.
//
// It never returns Go errors past its boundary. Every call yields a Status
// that carries the outcome of each step, so a caller can show partial
// success such as "domain registered, DNS not configured yet".
package domainclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/artpar/pagehost/internal/core/dns"
	"github.com/artpar/pagehost/internal/shell/domains"
)

// DefaultFreshness is how long a cached verification is served without a
// network call.
const DefaultFreshness = 5 * time.Minute

// Step names a stage of a façade operation.
type Step string

const (
	StepAdd        Step = "add"
	StepUpdatePage Step = "update_page"
	StepVerify     Step = "verify"
	StepRemove     Step = "remove"
)

// StepError is a failed step.
type StepError struct {
	Step    Step   `json:"step" yaml:"step"`
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
}

func (e StepError) String() string {
	return fmt.Sprintf("%s: %s: %s", e.Step, e.Code, e.Message)
}

// Status is the outcome of a façade call.
type Status struct {
	Domain     string       `json:"domain" yaml:"domain"`
	Slug       string       `json:"slug,omitempty" yaml:"slug,omitempty"`
	Verified   bool         `json:"verified" yaml:"verified"`
	DNSRecords []dns.Record `json:"dnsRecords" yaml:"dns_records"`
	CheckedAt  time.Time    `json:"checkedAt" yaml:"checked_at"`
	Errors     []StepError  `json:"errors,omitempty" yaml:"-"`
	FromCache  bool         `json:"fromCache" yaml:"-"`
}

// OK reports whether every step succeeded.
func (s Status) OK() bool {
	return len(s.Errors) == 0
}

// Failed returns the error of step, if it failed.
func (s Status) Failed(step Step) (StepError, bool) {
	for _, e := range s.Errors {
		if e.Step == step {
			return e, true
		}
	}
	return StepError{}, false
}

// Config holds façade settings.
type Config struct {
	BaseURL   string        `mapstructure:"base_url"`
	Token     string        `mapstructure:"token"`
	Freshness time.Duration `mapstructure:"freshness"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Client talks to the domain endpoints of a pagehost server.
type Client struct {
	baseURL    string
	token      string
	freshness  time.Duration
	httpClient *http.Client
	cache      Cache
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client. A nil cache means a MemoryCache.
func New(cfg Config, cache Cache, logger *slog.Logger, opts ...Option) *Client {
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		freshness:  cfg.Freshness,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		now:        time.Now,
		logger:     logger.With("component", "domain_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// Operations
// =============================================================================

// Check returns the verification status of domain, from the cache while
// it is fresh.
func (c *Client) Check(ctx context.Context, domain string) Status {
	return c.status(ctx, domain, false)
}

// Refresh re-verifies domain regardless of cache age.
func (c *Client) Refresh(ctx context.Context, domain string) Status {
	return c.status(ctx, domain, true)
}

func (c *Client) status(ctx context.Context, domain string, force bool) Status {
	key := cacheKey(domain)
	if !force {
		if cached, ok := c.cache.Get(key); ok && c.now().Sub(cached.CheckedAt) < c.freshness {
			cached.FromCache = true
			return cached
		}
	}
	return c.verify(ctx, domain, Status{Domain: domain})
}

// SaveDomain connects domain to the page: the server adds it, the page
// record is updated, and the result is re-verified and cached. Steps after
// a failed add are skipped; later failures are recorded and the remaining
// steps still run.
func (c *Client) SaveDomain(ctx context.Context, pageID, slug, domain string) Status {
	st := Status{Domain: domain, Slug: slug}

	var added apiResponse
	if se := c.call(ctx, StepAdd, http.MethodPost, "/api/domain/add",
		map[string]string{"slug": slug, "domain": domain}, &added); se != nil {
		st.Errors = append(st.Errors, *se)
		return st
	}
	st.Domain = added.Domain
	st.Verified = added.Verified
	st.DNSRecords = added.DNSRecords

	hostname := added.Domain
	if se := c.updatePage(ctx, pageID, &hostname); se != nil {
		st.Errors = append(st.Errors, *se)
	}

	return c.verify(ctx, added.Domain, st)
}

// RemoveDomain disconnects domain and clears it from the page record.
func (c *Client) RemoveDomain(ctx context.Context, pageID, domain string) Status {
	st := Status{Domain: domain}

	var removed apiResponse
	if se := c.call(ctx, StepRemove, http.MethodDelete, "/api/domain/delete",
		map[string]string{"domain": domain}, &removed); se != nil {
		st.Errors = append(st.Errors, *se)
		return st
	}
	if removed.Slug != nil {
		st.Slug = *removed.Slug
	}

	if pageID != "" {
		if se := c.updatePage(ctx, pageID, nil); se != nil {
			st.Errors = append(st.Errors, *se)
		}
	}

	if err := c.cache.Delete(cacheKey(domain)); err != nil {
		c.logger.Warn("failed to drop cached status", "domain", domain, "error", err)
	}
	st.CheckedAt = c.now()
	return st
}

// verify runs the verification step into st and caches a successful result.
func (c *Client) verify(ctx context.Context, domain string, st Status) Status {
	var res apiResponse
	if se := c.call(ctx, StepVerify, http.MethodGet,
		"/api/domain/verify?domain="+url.QueryEscape(domain), nil, &res); se != nil {
		st.Errors = append(st.Errors, *se)
		return st
	}

	st.Domain = res.Domain
	st.Verified = res.Verified
	st.DNSRecords = res.DNSRecords
	if st.DNSRecords == nil {
		st.DNSRecords = []dns.Record{}
	}
	st.CheckedAt = c.now()

	cached := st
	cached.Errors = nil
	if err := c.cache.Set(cacheKey(res.Domain), cached); err != nil {
		c.logger.Warn("failed to cache domain status", "domain", res.Domain, "error", err)
	}
	return st
}

// updatePage sets (or clears, when hostname is nil) the page's custom domain
// through the JSON:API page resource.
func (c *Client) updatePage(ctx context.Context, pageID string, hostname *string) *StepError {
	body := map[string]any{
		"data": map[string]any{
			"type": "pages",
			"id":   pageID,
			"attributes": map[string]any{
				"custom_domain": hostname,
			},
		},
	}
	return c.call(ctx, StepUpdatePage, http.MethodPatch, "/api/v1/pages/"+url.PathEscape(pageID), body, nil)
}

// =============================================================================
// Transport
// =============================================================================

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	OK         bool         `json:"ok"`
	Slug       *string      `json:"slug"`
	Domain     string       `json:"domain"`
	Verified   bool         `json:"verified"`
	DNSRecords []dns.Record `json:"dnsRecords"`
	Error      *apiError    `json:"error"`
}

// jsonAPIErrors is the error document of the JSON:API page resource.
type jsonAPIErrors struct {
	Errors []struct {
		Status string `json:"status"`
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (c *Client) call(ctx context.Context, step Step, method, path string, in, out any) *StepError {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return &StepError{Step: step, Code: string(domains.CodeInvalidRequest), Message: err.Error()}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &StepError{Step: step, Code: string(domains.CodeNetwork), Message: err.Error()}
	}
	if in != nil {
		if step == StepUpdatePage {
			req.Header.Set("Content-Type", "application/vnd.api+json")
		} else {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("domain request failed", "step", step, "error", err)
		return &StepError{Step: step, Code: string(domains.CodeNetwork), Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &StepError{Step: step, Code: string(domains.CodeNetwork), Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(step, resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &StepError{Step: step, Code: string(domains.CodeNetwork), Message: "invalid response: " + err.Error()}
	}
	return nil
}

func decodeError(step Step, status int, raw []byte) *StepError {
	var plain apiResponse
	if json.Unmarshal(raw, &plain) == nil && plain.Error != nil && plain.Error.Code != "" {
		return &StepError{Step: step, Code: plain.Error.Code, Message: plain.Error.Message}
	}

	var doc jsonAPIErrors
	if json.Unmarshal(raw, &doc) == nil && len(doc.Errors) > 0 {
		e := doc.Errors[0]
		code := e.Code
		if code == "" {
			code = fmt.Sprintf("HTTP_%d", status)
		}
		msg := e.Detail
		if msg == "" {
			msg = e.Title
		}
		return &StepError{Step: step, Code: code, Message: msg}
	}

	return &StepError{Step: step, Code: fmt.Sprintf("HTTP_%d", status), Message: http.StatusText(status)}
}

func cacheKey(domain string) string {
	if n, ok := dns.Normalize(domain); ok {
		return n.Domain
	}
	return strings.ToLower(strings.TrimSpace(domain))
}
