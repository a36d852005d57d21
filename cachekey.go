package condcache

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Keyer produces deterministic cache keys for requests.
type Keyer interface {
	// BaseKey returns the primary cache key for req, derived from the request
	// URL only. Two requests differing only in query parameter order or
	// fragment must produce identical base keys.
	BaseKey(req *http.Request) string

	// VariantKey extends base with the request's values for the given Vary
	// header names. With no usable names it returns base unchanged.
	VariantKey(base string, varyNames []string, req *http.Request) string
}

// DefaultKeyer is the Keyer used when none is configured.
type DefaultKeyer struct{}

// BaseKey returns the normalized URL of req: scheme and host lowercased,
// default ports elided, fragment stripped, and query parameters stably sorted
// by name. Values of a repeated parameter keep their relative order.
// Unparseable query strings are kept as-is.
func (DefaultKeyer) BaseKey(req *http.Request) string {
	u := req.URL

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	host = stripDefaultPort(scheme, host)

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(path)
	if q := normalizeQuery(u.RawQuery); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	return b.String()
}

// VariantKey returns base extended with one dimension per Vary header name.
// Accept-Encoding is dropped because stored bodies are identity-encoded, the
// remaining names are canonicalized and sorted, and an absent request header
// contributes an empty value, so absence matches only absence.
// The format follows base + "|vary:" + "Name:value" parts joined by "|".
func (DefaultKeyer) VariantKey(base string, varyNames []string, req *http.Request) string {
	var parts []string
	for _, name := range varyNames {
		canonical := http.CanonicalHeaderKey(strings.TrimSpace(name))
		if canonical == "" || canonical == "*" || canonical == headerAcceptEncoding {
			continue
		}
		value := normalizeHeaderValue(req.Header.Get(canonical))
		parts = append(parts, canonical+":"+value)
	}
	if len(parts) == 0 {
		return base
	}
	sort.Strings(parts)
	return base + "|vary:" + strings.Join(parts, "|")
}

// stripDefaultPort removes an explicit default port from host.
func stripDefaultPort(scheme, host string) string {
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		return strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		return strings.TrimSuffix(host, ":443")
	}
	return host
}

// normalizeQuery decodes rawQuery and re-encodes it with parameter names
// sorted. url.Values.Encode sorts by name and preserves the relative order of
// repeated values. Queries that fail to parse are returned unchanged.
func normalizeQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	return values.Encode()
}
