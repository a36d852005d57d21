package condcache

import "net/http"

// understoodStatusCodes are the statuses this cache understands and may store:
// the heuristically cacheable codes of RFC 9110 Section 15.1.
var understoodStatusCodes = map[int]bool{
	http.StatusOK:                   true,
	http.StatusNonAuthoritativeInfo: true,
	http.StatusNoContent:            true,
	http.StatusMovedPermanently:     true,
	http.StatusNotFound:             true,
	http.StatusMethodNotAllowed:     true,
	http.StatusGone:                 true,
	http.StatusRequestURITooLong:    true,
	http.StatusNotImplemented:       true,
}

// isUnsafeMethod reports whether method can change state on the origin
// (RFC 9110 Section 9.2.1). Successful responses to these methods invalidate
// stored entries for the target URI.
func isUnsafeMethod(method string) bool {
	switch method {
	case methodPOST, methodPUT, methodPATCH, methodDELETE:
		return true
	}
	return false
}

// varyWildcard reports whether h's Vary lists "*". Such responses can never
// be matched to a later request (RFC 9111 Section 4.1).
func varyWildcard(h http.Header) bool {
	for _, v := range headerAllCommaSepValues(h, headerVary) {
		if v == "*" {
			return true
		}
	}
	return false
}

// isResponseCacheable decides whether the engine schedules a store write for
// a response (RFC 9111 Section 3). must-understand makes storability depend
// on the status being understood and overrides no-store (RFC 9111 Section
// 5.2.2.3). A configured ShouldCache hook replaces the status-code check;
// directive handling stays in force either way.
func (e *Engine) isResponseCacheable(req *http.Request, resp *http.Response) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if hasCredentials(req, e.credentialHeaders) {
		return false
	}
	if varyWildcard(resp.Header) {
		return false
	}

	respCC := parseCacheControl(resp.Header, e.log())
	reqCC := parseCacheControl(req.Header, e.log())

	if respCC.has(cacheControlMustUnderstand) {
		if !understoodStatusCodes[resp.StatusCode] {
			return false
		}
	} else if respCC.has(cacheControlNoStore) || reqCC.has(cacheControlNoStore) {
		return false
	}
	if respCC.has(cacheControlPrivate) {
		return false
	}

	if e.shouldCache != nil {
		return e.shouldCache(resp)
	}
	return understoodStatusCodes[resp.StatusCode]
}
