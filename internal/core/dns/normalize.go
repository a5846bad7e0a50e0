// Package dns contains pure functions for custom domain handling: input
// normalization, DNS record guidance and connection states.
// This is part of the Functional Core - all functions are pure with no I/O.
package dns

import (
	"net"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// =============================================================================
// Normalization
// =============================================================================

const maxHostnameLength = 253

var labelRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// idnaProfile maps unicode input to its ASCII (punycode) form and enforces
// STD3 rules, so anything that survives is a plain DNS name.
var idnaProfile = idna.New(
	idna.MapForLookup(),
	idna.StrictDomainName(true),
	idna.Transitional(false),
	idna.VerifyDNSLength(true),
)

// Normalized is a canonical custom domain.
type Normalized struct {
	// Domain is the lowercased fully-qualified host without trailing dot.
	Domain string `json:"domain"`

	// Sub is the part of Domain left of the registrable apex; empty for an apex.
	Sub string `json:"sub"`
}

// Normalize parses user input into a canonical domain.
// A leading scheme, a path, a port and a trailing dot are tolerated and
// stripped. It returns false for empty input, whitespace inside the host,
// IP addresses, single-label hosts, bare public suffixes and any label that
// is not a valid DNS label after IDNA mapping.
//
// Normalize is idempotent: Normalize(n.Domain) returns n for every n it
// produces.
func Normalize(raw string) (Normalized, bool) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return Normalized{}, false
	}
	host = strings.ToLower(host)

	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(host, scheme) {
			host = strings.TrimPrefix(host, scheme)
			break
		}
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	host = strings.TrimSuffix(host, ".")

	if host == "" || strings.ContainsAny(host, " \t\r\n") {
		return Normalized{}, false
	}
	if net.ParseIP(host) != nil {
		return Normalized{}, false
	}

	ascii, err := idnaProfile.ToASCII(host)
	if err != nil || ascii == "" || len(ascii) > maxHostnameLength {
		return Normalized{}, false
	}

	labels := strings.Split(ascii, ".")
	if len(labels) < 2 {
		return Normalized{}, false
	}
	for _, label := range labels {
		if !labelRegex.MatchString(label) {
			return Normalized{}, false
		}
	}
	// Top-level domains are never numeric.
	if isNumeric(labels[len(labels)-1]) {
		return Normalized{}, false
	}

	apex, err := publicsuffix.EffectiveTLDPlusOne(ascii)
	if err != nil {
		return Normalized{}, false
	}

	sub := ""
	if apex != ascii {
		sub = strings.TrimSuffix(ascii, "."+apex)
	}

	return Normalized{Domain: ascii, Sub: sub}, true
}

// NormalizeHost lowercases a request host and strips any port and trailing dot.
// Unlike Normalize it never rejects input; it is meant for Host headers.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
