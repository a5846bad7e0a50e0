package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/artpar/pagehost/internal/core/auth"
	"github.com/artpar/pagehost/internal/core/edge"
	"github.com/artpar/pagehost/internal/shell/metrics"
)

// =============================================================================
// Edge Router
// =============================================================================

// DomainLookup resolves a custom host to the slug it serves.
type DomainLookup interface {
	Get(ctx context.Context, domain string) (slug string, found bool, err error)
}

// EdgeConfig configures the edge middleware.
type EdgeConfig struct {
	Rules  edge.Rules
	Lookup DomainLookup

	// SignInURL receives unauthenticated dashboard requests, with the
	// original URL in the redirect_url query parameter.
	SignInURL string

	Logger *slog.Logger
}

// Edge applies routing decisions before any handler runs: host rewrites for
// tenant subdomains and custom domains, and sign-in redirects for protected
// dashboard routes. It must run after AuthMiddleware.
func Edge(cfg EdgeConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "edge")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := cfg.Rules.Decide(r.Host, r.URL.Path)

			if d.Action == edge.ActionLookup {
				slug, found := "", false
				if cfg.Lookup != nil {
					var err error
					slug, found, err = cfg.Lookup.Get(r.Context(), d.Host)
					if err != nil {
						// Serve the default route rather than fail the visitor.
						logger.Warn("routing table lookup failed", "host", d.Host, "error", err)
						found = false
					}
				}
				d = cfg.Rules.Resolve(d, slug, found)
			}

			metrics.EdgeDecisions.WithLabelValues(d.Action.String(), d.Reason).Inc()

			switch d.Action {
			case edge.ActionRewrite:
				logger.Debug("rewrite", "host", d.Host, "path", d.Path, "reason", d.Reason)
				next.ServeHTTP(w, rewrite(r, d.Path))
				return

			case edge.ActionRequireAuth:
				if !auth.FromContext(r.Context()).Authenticated {
					http.Redirect(w, r, signInRedirect(cfg.SignInURL, r), http.StatusTemporaryRedirect)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rewrite(r *http.Request, path string) *http.Request {
	r2 := r.Clone(r.Context())
	u := *r.URL
	u.Path = path
	u.RawPath = ""
	r2.URL = &u
	r2.RequestURI = u.RequestURI()
	return r2
}

// signInRedirect builds the sign-in URL carrying the absolute original URL.
func signInRedirect(signIn string, r *http.Request) string {
	if signIn == "" {
		signIn = "/sign-in"
	}

	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	original := scheme + "://" + r.Host + r.URL.RequestURI()

	u, err := url.Parse(signIn)
	if err != nil {
		return signIn
	}
	q := u.Query()
	q.Set("redirect_url", original)
	u.RawQuery = q.Encode()
	return u.String()
}
