package models

// TraceStep records one strategy's outcome during resolution
type TraceStep struct {
	Strategy   string `json:"strategy"`
	Credential string `json:"credential,omitempty"`
	Outcome    string `json:"outcome"`
}

// Trace is a redacted record of how a verdict was reached. It is built up
// by the resolver while the cascade runs, attached to the verdict, and
// never consulted by any decision. Credential material is redacted before
// it enters a step.
type Trace struct {
	Steps []TraceStep `json:"steps"`
}

// NewTrace returns an empty trace
func NewTrace() *Trace {
	return &Trace{}
}

// Add appends a step. Callers pass already-redacted credential material.
func (t *Trace) Add(strategy, credential, outcome string) {
	if t == nil {
		return
	}
	t.Steps = append(t.Steps, TraceStep{
		Strategy:   strategy,
		Credential: credential,
		Outcome:    outcome,
	})
}

// RedactToken renders a bearer token as a fixed-length prefix and suffix.
// Tokens too short to redact safely are masked entirely.
func RedactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// RedactSecret renders a shared secret as a short prefix only
func RedactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "***"
	}
	return secret[:4] + "***"
}
