package condcache

import (
	"io"
	"net/http"
	"strings"
)

// headerAllCommaSepValues returns all comma-separated values (each with
// whitespace trimmed) for header name in headers. Values from multiple
// occurrences of the header are concatenated, as RFC 9110 Section 5.3 allows
// for list-typed fields. Empty elements are dropped.
func headerAllCommaSepValues(headers http.Header, name string) []string {
	var vals []string
	for _, val := range headers[http.CanonicalHeaderKey(name)] {
		for _, f := range strings.Split(val, ",") {
			f = strings.TrimSpace(f)
			if f != "" {
				vals = append(vals, f)
			}
		}
	}
	return vals
}

// normalizeHeaderValue normalizes a header field value for comparison and for
// inclusion in cache keys: the value is comma-split, each element trimmed,
// empty elements dropped, and the rest rejoined with a single comma.
// "en, fr" and "en,fr" normalize identically per RFC 9111 Section 4.1.
func normalizeHeaderValue(value string) string {
	parts := strings.Split(value, ",")
	kept := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ",")
}

// cloneHeader returns a deep copy of h. Mutating the copy never mutates h.
func cloneHeader(h http.Header) http.Header {
	h2 := make(http.Header, len(h))
	for k, vv := range h {
		vv2 := make([]string, len(vv))
		copy(vv2, vv)
		h2[k] = vv2
	}
	return h2
}

// cloneRequest returns a clone of the provided *http.Request.
// The clone is a shallow copy of the struct with a deep copy of the Header.
func cloneRequest(r *http.Request) *http.Request {
	r2 := new(http.Request)
	*r2 = *r
	r2.Header = cloneHeader(r.Header)
	return r2
}

// endToEndHeaders returns the names of the headers in respHeaders that are not
// hop-by-hop. Connection-listed headers are hop-by-hop too, per RFC 9110
// Section 7.6.1.
func endToEndHeaders(respHeaders http.Header) []string {
	hopByHop := map[string]struct{}{
		"Connection":          {},
		"Keep-Alive":          {},
		"Proxy-Authenticate":  {},
		"Proxy-Authorization": {},
		"Te":                  {},
		"Trailers":            {},
		"Transfer-Encoding":   {},
		"Upgrade":             {},
	}
	for _, extra := range headerAllCommaSepValues(respHeaders, "Connection") {
		hopByHop[http.CanonicalHeaderKey(extra)] = struct{}{}
	}

	names := []string{}
	for name := range respHeaders {
		if _, ok := hopByHop[name]; !ok {
			names = append(names, name)
		}
	}
	return names
}

// stripHopByHopHeaders removes hop-by-hop headers from h in place.
func stripHopByHopHeaders(h http.Header) {
	keep := make(map[string]struct{})
	for _, name := range endToEndHeaders(h) {
		keep[name] = struct{}{}
	}
	for name := range h {
		if _, ok := keep[name]; !ok {
			h.Del(name)
		}
	}
}

const bodyDrainSize = 1 << 15 // 32KB, arbitrary limit for draining

// drainDiscardedBody reads and discards up to bodyDrainSize bytes from the
// body and closes it, allowing connection reuse when a response is replaced
// by a 304, a 412, or a veto.
func drainDiscardedBody(body io.ReadCloser) {
	if body == nil {
		return
	}
	if _, err := io.Copy(io.Discard, io.LimitReader(body, bodyDrainSize)); err != nil {
		GetLogger().Debug("failed to drain discarded body", "error", err)
	}
	if err := body.Close(); err != nil {
		GetLogger().Debug("failed to close discarded body", "error", err)
	}
}
