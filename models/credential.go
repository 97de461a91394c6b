package models

// BearerSource records which transport supplied the bearer token. It feeds
// the debug trace only; resolution never branches on it.
type BearerSource string

const (
	BearerSourceHeader BearerSource = "header"
	BearerSourceQuery  BearerSource = "query"
)

// Credentials holds the raw credential material extracted from a single
// request, before any validation. Absent credentials are empty strings.
// The value is built fresh per request and discarded after resolution.
type Credentials struct {
	BearerToken  string
	BearerSource BearerSource
	Referer      string
	EnterToken   string
	UpstreamID   string
}

// HasBearer reports whether a bearer token was presented
func (c Credentials) HasBearer() bool {
	return c.BearerToken != ""
}

// HasReferer reports whether a referring page was presented
func (c Credentials) HasReferer() bool {
	return c.Referer != ""
}

// HasEnterToken reports whether an elevated token was presented
func (c Credentials) HasEnterToken() bool {
	return c.EnterToken != ""
}

// HasUpstreamID reports whether an upstream identity id was presented.
// The id is only meaningful alongside a valid elevated token.
func (c Credentials) HasUpstreamID() bool {
	return c.UpstreamID != ""
}
