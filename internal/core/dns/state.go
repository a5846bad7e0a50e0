package dns

// =============================================================================
// Connection State
// =============================================================================

// State is the connection state of a (page, domain) pair as last observed.
// Verified and misconfigured flip back and forth through repeated checks
// until the tenant fixes DNS.
type State string

const (
	StatePending       State = "pending"
	StateVerified      State = "verified"
	StateMisconfigured State = "misconfigured"
	// StateRemoved marks a domain the owner disconnected while the page
	// record still names it.
	StateRemoved State = "removed"
)

// StateFromCheck maps a registrar configuration read onto a state.
func StateFromCheck(misconfigured bool) State {
	if misconfigured {
		return StateMisconfigured
	}
	return StateVerified
}
