package session

import (
	"wafra.app/internal/api"
)

// State is the session lifecycle position.
type State int

const (
	// StateRestoring is the initial state while a previously persisted
	// session is being recovered.
	StateRestoring State = iota
	// StateAuthenticating is entered by login, OAuth, registration, OTP
	// verification and reset confirmation.
	StateAuthenticating
	// StateAuthenticated means a user is signed in (possibly with partial
	// enrichment data).
	StateAuthenticated
	// StateUnauthenticated means no user is signed in.
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateRestoring:
		return "restoring"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// ExtendedUser is the base identity plus independently fetched sub-records.
// Any sub-record may be nil without invalidating the identity.
type ExtendedUser struct {
	Identity    api.Identity
	Credentials *api.Credentials
	Profile     *api.Profile
	Balance     *api.Balance
}

// Snapshot is the externally visible session state. Exactly one writer (the
// manager) produces snapshots; readers receive copies.
type Snapshot struct {
	State   State
	Loading bool
	User    *ExtendedUser
	Err     string // localized prose, empty when none
}

// OpError is the failure every public operation returns. Message is the
// localized user-facing text; Kind preserves the boundary classification for
// callers that branch (e.g. to distinguish a timeout from a rejection).
type OpError struct {
	Kind    api.Kind
	Message string
}

func (e *OpError) Error() string { return e.Message }
