// Package registrar talks to the hosting provider's domain API.
// Client is a thin REST wrapper; Registrar layers the best-effort write
// policy on top of it.
package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the hosting provider's public API.
const DefaultBaseURL = "https://api.vercel.com"

// Client provides methods for interacting with the hosting provider's API.
type Client struct {
	baseURL    string
	token      string
	projectID  string
	teamID     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Config holds registrar client configuration.
type Config struct {
	BaseURL   string        `mapstructure:"base_url"`   // defaults to DefaultBaseURL
	Token     string        `mapstructure:"token"`      // bearer token
	ProjectID string        `mapstructure:"project_id"` // project id or name domains attach to
	TeamID    string        `mapstructure:"team_id"`    // optional team scope
	Timeout   time.Duration `mapstructure:"timeout"`
}

// NewClient creates a new registrar client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		token:     cfg.Token,
		projectID: cfg.ProjectID,
		teamID:    cfg.TeamID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// =============================================================================
// Types
// =============================================================================

// ProjectDomain is a domain attached to the project.
type ProjectDomain struct {
	Name      string `json:"name"`
	ApexName  string `json:"apexName"`
	ProjectID string `json:"projectId"`
	Verified  bool   `json:"verified"`
}

// DomainConfig is the provider's view of a domain's DNS configuration.
// ConfiguredBy is empty while no record points at the provider.
type DomainConfig struct {
	ConfiguredBy  string `json:"configuredBy"`
	Misconfigured bool   `json:"misconfigured"`
}

// APIError is a non-success response from the provider.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("registrar: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("registrar: unexpected status %d: %s", e.StatusCode, e.Message)
}

// IsConflict reports whether the provider refused because the domain is
// already attached.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

// IsNotFound reports whether the provider does not know the domain.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// Operations
// =============================================================================

// AddProjectDomain attaches domain to the configured project.
func (c *Client) AddProjectDomain(ctx context.Context, domain string) (*ProjectDomain, error) {
	body, err := json.Marshal(map[string]string{"name": domain})
	if err != nil {
		return nil, fmt.Errorf("marshal domain: %w", err)
	}

	path := "/v10/projects/" + url.PathEscape(c.projectID) + "/domains"
	var out ProjectDomain
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveProjectDomain detaches domain from the configured project.
func (c *Client) RemoveProjectDomain(ctx context.Context, domain string) error {
	path := "/v9/projects/" + url.PathEscape(c.projectID) + "/domains/" + url.PathEscape(domain)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// GetDomainConfig reads the DNS configuration state of domain.
func (c *Client) GetDomainConfig(ctx context.Context, domain string) (*DomainConfig, error) {
	path := "/v6/domains/" + url.PathEscape(domain) + "/config"
	var out DomainConfig
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	u := c.baseURL + path
	if c.teamID != "" {
		u += "?teamId=" + url.QueryEscape(c.teamID)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(raw)}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error.Code != "" {
			apiErr.Code = eb.Error.Code
			apiErr.Message = eb.Error.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
