package condcache

import (
	"context"
	"net/http"
)

// lastModifiedRule evaluates the date validators against the representation's
// Last-Modified timestamp (RFC 9110 Sections 13.1.3 and 13.1.4). Only 200
// responses are examined; date validators are defined over successful
// representations, so any other status passes through untouched.
//
// If-Unmodified-Since yields to If-Match and If-Modified-Since yields to
// If-None-Match, matching the evaluation order of RFC 9110 Section 13.2.2.
type lastModifiedRule struct{}

func (lastModifiedRule) Name() string { return "last-modified" }

func (r lastModifiedRule) Apply(ctx context.Context, ex *Exchange, next Next) Verdict {
	verdict := next(ctx)
	if ex.vals.IfModifiedSince == nil && ex.vals.IfUnmodifiedSince == nil {
		return verdict
	}
	resp, ok := verdict.Response()
	if !ok || resp.StatusCode != http.StatusOK {
		return verdict
	}
	lastMod := parseHTTPDate(resp.Header.Get(headerLastModified))
	if lastMod == nil {
		return verdict
	}

	if ex.vals.IfUnmodifiedSince != nil && !ex.vals.HasIfMatch() {
		if lastMod.After(*ex.vals.IfUnmodifiedSince) {
			drainDiscardedBody(resp.Body)
			return Hit(respond412(ex.req, preconditionDetails{
				Header:       headerIfUnmodifiedSince,
				Since:        ex.vals.IfUnmodifiedSince.UTC().Format(http.TimeFormat),
				LastModified: lastMod.UTC().Format(http.TimeFormat),
			}))
		}
	}

	if ex.vals.IfModifiedSince != nil && !ex.vals.HasIfNoneMatch() {
		if !lastMod.After(*ex.vals.IfModifiedSince) {
			return Hit(respond304(resp))
		}
	}

	return verdict
}

var _ Rule = lastModifiedRule{}
