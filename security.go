package condcache

import (
	"context"
	"net/http"
)

// credentialRule bypasses the cache for requests carrying credentials.
// Responses to authenticated requests must not be served from a shared cache
// without explicit directives (RFC 9111 Section 3.5); this engine takes the
// conservative route and declines outright.
//
// The header list is configurable via WithCredentialHeaders. An empty list
// disables the rule.
type credentialRule struct {
	headers []string
}

func (credentialRule) Name() string { return "credential-exclusion" }

func (r credentialRule) Apply(ctx context.Context, ex *Exchange, next Next) Verdict {
	for _, name := range r.headers {
		if ex.req.Header.Get(name) != "" {
			return ex.veto(r)
		}
	}
	return next(ctx)
}

var _ Rule = credentialRule{}

// hasCredentials reports whether req carries any of the given headers. Used by
// cacheability checks to keep store writes consistent with the rule above.
func hasCredentials(req *http.Request, headers []string) bool {
	for _, name := range headers {
		if req.Header.Get(name) != "" {
			return true
		}
	}
	return false
}
