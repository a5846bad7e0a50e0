// Package edge decides how an inbound request is routed before any tenant
// content or dashboard code runs.
// This is part of the Functional Core - all functions are pure with no I/O.
// The routing-table lookup a custom host needs is performed by the caller
// between Decide and Resolve.
package edge

import (
	"strings"

	"github.com/artpar/pagehost/internal/core/dns"
	"github.com/artpar/pagehost/internal/core/domain"
)

// Action is what the edge does with a request.
type Action int

const (
	// ActionPass serves the request unchanged.
	ActionPass Action = iota
	// ActionRewrite serves Decision.Path instead of the requested path.
	ActionRewrite
	// ActionRequireAuth serves the request only with a session, otherwise
	// redirects to sign-in.
	ActionRequireAuth
	// ActionLookup asks the caller to resolve Decision.Host in the routing
	// table and call Resolve with the result.
	ActionLookup
)

func (a Action) String() string {
	switch a {
	case ActionPass:
		return "pass"
	case ActionRewrite:
		return "rewrite"
	case ActionRequireAuth:
		return "require_auth"
	case ActionLookup:
		return "lookup"
	default:
		return "unknown"
	}
}

// Decision is the outcome of routing a single request.
type Decision struct {
	Action Action
	Host   string // normalized request host
	Path   string // rewrite target for ActionRewrite
	Reason string // short label for logs and metrics
}

// Rules configures the router.
type Rules struct {
	AppHost           string   // e.g. "app.pagehost.io"
	PagesBaseHost     string   // e.g. "pagehost.site"; "<slug>.pagehost.site" serves a page
	PreviewHosts      []string // staging and preview deployments of the app
	ProtectedPrefixes []string // dashboard routes that need a session on the app host
	APIPrefix         string   // defaults to "/api"
	ReservedLabel     string   // subdomain of PagesBaseHost never treated as a slug; defaults to "www"
}

// DefaultProtectedPrefixes are the dashboard's top-level routes.
var DefaultProtectedPrefixes = []string{"/pages", "/assets", "/leads", "/statistiken"}

func (r Rules) apiPrefix() string {
	if r.APIPrefix == "" {
		return "/api"
	}
	return r.APIPrefix
}

func (r Rules) reservedLabel() string {
	if r.ReservedLabel == "" {
		return "www"
	}
	return r.ReservedLabel
}

// Decide routes a request for host and path. Rules are checked in order:
//  1. "<label>.<PagesBaseHost>" at "/" rewrites to "/<label>".
//  2. Any other foreign host at "/" needs a routing-table lookup.
//  3. The API namespace passes; API handlers authenticate themselves.
//  4. Protected prefixes on the app host require a session.
//  5. Everything else passes.
//
// Rewrites are decided before auth so public tenant content never needs a
// dashboard session.
func (r Rules) Decide(host, path string) Decision {
	host = dns.NormalizeHost(host)
	if path == "" {
		path = "/"
	}
	appHost := dns.NormalizeHost(r.AppHost)
	baseHost := dns.NormalizeHost(r.PagesBaseHost)
	isRoot := path == "/"

	label, underBase := r.subdomainLabel(host, baseHost)
	if underBase && isRoot {
		if label != "" && label != r.reservedLabel() && domain.IsSafeSlug(label) {
			return Decision{Action: ActionRewrite, Host: host, Path: "/" + label, Reason: "subdomain"}
		}
	}

	if isRoot && host != "" && !underBase && host != baseHost && host != appHost && !r.isPreviewHost(host) {
		return Decision{Action: ActionLookup, Host: host, Reason: "custom_domain"}
	}

	return r.decideAfterRewrite(host, path, appHost)
}

// Resolve completes an ActionLookup decision with the routing-table result.
// A missing entry, or a stored value that is not a safe slug, falls through
// to the remaining rules for path "/".
func (r Rules) Resolve(d Decision, slug string, found bool) Decision {
	if d.Action != ActionLookup {
		return d
	}
	if found && domain.IsSafeSlug(slug) {
		return Decision{Action: ActionRewrite, Host: d.Host, Path: "/" + slug, Reason: "custom_domain"}
	}
	return r.decideAfterRewrite(d.Host, "/", dns.NormalizeHost(r.AppHost))
}

func (r Rules) decideAfterRewrite(host, path, appHost string) Decision {
	if hasPrefix(path, r.apiPrefix()) {
		return Decision{Action: ActionPass, Host: host, Reason: "api"}
	}

	if host == appHost {
		for _, prefix := range r.ProtectedPrefixes {
			if hasPrefix(path, prefix) {
				return Decision{Action: ActionRequireAuth, Host: host, Reason: "protected"}
			}
		}
	}

	return Decision{Action: ActionPass, Host: host, Reason: "default"}
}

// subdomainLabel returns the part of host left of "."+base.
func (r Rules) subdomainLabel(host, base string) (string, bool) {
	if base == "" {
		return "", false
	}
	suffix := "." + base
	if !strings.HasSuffix(host, suffix) {
		return "", false
	}
	return strings.TrimSuffix(host, suffix), true
}

func (r Rules) isPreviewHost(host string) bool {
	for _, h := range r.PreviewHosts {
		h = dns.NormalizeHost(h)
		if h == "" {
			continue
		}
		// "*.preview.example.com" matches any single preview deployment.
		if strings.HasPrefix(h, "*.") {
			if strings.HasSuffix(host, h[1:]) {
				return true
			}
			continue
		}
		if host == h {
			return true
		}
	}
	return false
}

// hasPrefix matches whole path segments: "/pages" matches "/pages" and
// "/pages/x" but not "/pagesx".
func hasPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return false
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
