package dns

// =============================================================================
// DNS Instructions
// =============================================================================

const (
	// DefaultApexTarget is the hosting provider's anycast address for apex domains.
	DefaultApexTarget = "216.198.79.1"

	// DefaultCNAMETarget is the hosting provider's wildcard CNAME target.
	DefaultCNAMETarget = "8bfbfd0adfe9edc0.vercel-dns-017.com."
)

// Record types emitted in instructions.
const (
	RecordTypeA     = "A"
	RecordTypeCNAME = "CNAME"
)

// Record is a DNS record the tenant must create at their DNS provider.
type Record struct {
	Type  string `json:"type"`  // "A" or "CNAME"
	Name  string `json:"name"`  // "@" for the apex, otherwise the label
	Value string `json:"value"` // IP address or CNAME target
}

// Targets are the values records must point at.
type Targets struct {
	A     string
	CNAME string
}

// DefaultTargets returns the hosting provider's published targets.
func DefaultTargets() Targets {
	return Targets{A: DefaultApexTarget, CNAME: DefaultCNAMETarget}
}

func (t Targets) withDefaults() Targets {
	if t.A == "" {
		t.A = DefaultApexTarget
	}
	if t.CNAME == "" {
		t.CNAME = DefaultCNAMETarget
	}
	return t
}

// Instructions derives the records a tenant has to add.
// Nothing is required unless the registrar reports the domain as
// misconfigured. A subdomain needs a single CNAME; an apex needs an A record
// for "@" plus a CNAME for "www". The result is never nil.
func Instructions(sub string, misconfigured bool, targets Targets) []Record {
	if !misconfigured {
		return []Record{}
	}
	targets = targets.withDefaults()

	if sub != "" {
		return []Record{
			{Type: RecordTypeCNAME, Name: sub, Value: targets.CNAME},
		}
	}

	return []Record{
		{Type: RecordTypeA, Name: "@", Value: targets.A},
		{Type: RecordTypeCNAME, Name: "www", Value: targets.CNAME},
	}
}
