// Package condcache decides whether worker-style HTTP requests can be answered
// from a cache, must be answered with a conditional status (304 Not Modified or
// 412 Precondition Failed), or should fall through to the origin, following the
// conditional request semantics of RFC 9110 and the storage model of RFC 9111.
package condcache

import (
	"net/http"
	"strconv"
)

// Verdict is the outcome of evaluating a request against the cache.
// A Verdict is either a Hit carrying the response to send, or a Miss meaning
// the engine has nothing and the caller should fall through to the origin.
// The zero value is a Miss.
type Verdict struct {
	resp *http.Response
}

// Hit returns a Verdict carrying resp as the response to send.
// Hit(nil) is equivalent to Miss().
func Hit(resp *http.Response) Verdict {
	return Verdict{resp: resp}
}

// Miss returns a Verdict meaning the engine declines to answer the request.
func Miss() Verdict {
	return Verdict{}
}

// Response returns the carried response and true for a Hit, or nil and false
// for a Miss.
func (v Verdict) Response() (*http.Response, bool) {
	if v.resp == nil {
		return nil, false
	}
	return v.resp, true
}

// IsHit reports whether the verdict carries a response.
func (v Verdict) IsHit() bool {
	return v.resp != nil
}

// String returns "hit" or "miss", with the status code for hits.
func (v Verdict) String() string {
	if v.resp == nil {
		return "miss"
	}
	return "hit " + strconv.Itoa(v.resp.StatusCode)
}
