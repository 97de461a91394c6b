package models

import "time"

// AuthMethod identifies which cascade strategy produced a verdict
type AuthMethod string

const (
	MethodElevatedWithIdentity AuthMethod = "ELEVATED_WITH_IDENTITY"
	MethodElevated             AuthMethod = "ELEVATED"
	MethodToken                AuthMethod = "TOKEN"
	MethodReferrer             AuthMethod = "REFERRER"
	MethodNone                 AuthMethod = "NONE"
)

// AuthVerdict is the final output of the authentication cascade. It is
// immutable once produced and rides the request context read-only for the
// rest of the request's lifetime. Invariant: Authenticated is true exactly
// when Method != MethodNone.
type AuthVerdict struct {
	Authenticated bool       `json:"authenticated"`
	Method        AuthMethod `json:"method"`
	Identity      Identity   `json:"identity"`
	Trace         *Trace     `json:"trace,omitempty"`
}

// NewVerdict builds a verdict for a successful strategy
func NewVerdict(method AuthMethod, identity Identity, trace *Trace) *AuthVerdict {
	return &AuthVerdict{
		Authenticated: method != MethodNone,
		Method:        method,
		Identity:      identity,
		Trace:         trace,
	}
}

// UnauthenticatedVerdict is the terminal no-auth state of the cascade
func UnauthenticatedVerdict(trace *Trace) *AuthVerdict {
	return &AuthVerdict{
		Authenticated: false,
		Method:        MethodNone,
		Identity:      AnonymousIdentity(),
		Trace:         trace,
	}
}

// AdmissionClass is the rate-limiting configuration assigned to a request
// from its resolved authentication method. Computed once per request and
// consumed immediately by the admission queue.
type AdmissionClass struct {
	// Interval is the minimum spacing between admissions for one key
	Interval time.Duration
	// Capacity bounds the pending entries per key; zero means unbounded
	Capacity int
}
