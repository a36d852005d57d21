package condcache

import (
	"net/http"
	"net/url"
	"testing"
)

func TestBaseKey(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"plain", "http://example.com/path", "http://example.com/path"},
		{"empty path", "http://example.com", "http://example.com/"},
		{"host lowercased", "http://EXAMPLE.com/path", "http://example.com/path"},
		{"default http port elided", "http://example.com:80/path", "http://example.com/path"},
		{"default https port elided", "https://example.com:443/path", "https://example.com/path"},
		{"explicit port kept", "http://example.com:8080/path", "http://example.com:8080/path"},
		{"https port on http kept", "http://example.com:443/path", "http://example.com:443/path"},
		{"query sorted by name", "http://example.com/p?b=2&a=1", "http://example.com/p?a=1&b=2"},
		{"repeated values keep order", "http://example.com/p?a=2&a=1", "http://example.com/p?a=2&a=1"},
		{"fragment stripped", "http://example.com/p?a=1#section", "http://example.com/p?a=1"},
	}

	var keyer DefaultKeyer
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := getRequest(tt.url, nil)
			if got := keyer.BaseKey(req); got != tt.want {
				t.Errorf("BaseKey(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestBaseKeyEquivalentRequests(t *testing.T) {
	var keyer DefaultKeyer
	a := keyer.BaseKey(getRequest("http://example.com/p?x=1&y=2", nil))
	b := keyer.BaseKey(getRequest("http://example.com/p?y=2&x=1", nil))
	if a != b {
		t.Errorf("equivalent requests keyed differently: %q vs %q", a, b)
	}
}

func TestBaseKeyUnparseableQueryKept(t *testing.T) {
	// Build the URL directly; the invalid escape would not survive url.Parse.
	req := &http.Request{
		Method: http.MethodGet,
		URL:    &url.URL{Scheme: "HTTP", Host: "Example.com", Path: "/p", RawQuery: "a=%zz"},
		Header: http.Header{},
	}
	var keyer DefaultKeyer
	if got, want := keyer.BaseKey(req), "http://example.com/p?a=%zz"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestVariantKey(t *testing.T) {
	const base = "http://example.com/p"

	tests := []struct {
		name      string
		varyNames []string
		header    map[string]string
		want      string
	}{
		{"no names", nil, nil, base},
		{"one dimension", []string{"Accept"}, map[string]string{"Accept": "application/json"},
			base + "|vary:Accept:application/json"},
		{"absent header is empty", []string{"Accept"}, nil, base + "|vary:Accept:"},
		{"names canonicalized and sorted", []string{"accept-language", "Accept"},
			map[string]string{"Accept": "text/html", "Accept-Language": "en"},
			base + "|vary:Accept-Language:en|Accept:text/html"},
		{"accept-encoding dropped", []string{"Accept-Encoding", "Accept"},
			map[string]string{"Accept-Encoding": "gzip", "Accept": "text/html"},
			base + "|vary:Accept:text/html"},
		{"wildcard dropped", []string{"*", "Accept"}, map[string]string{"Accept": "text/html"},
			base + "|vary:Accept:text/html"},
		{"only unusable names", []string{"*", "Accept-Encoding"}, nil, base},
		{"value whitespace normalized", []string{"Accept-Language"},
			map[string]string{"Accept-Language": "en, fr"},
			base + "|vary:Accept-Language:en,fr"},
	}

	var keyer DefaultKeyer
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := getRequest(base, tt.header)
			if got := keyer.VariantKey(base, tt.varyNames, req); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// sorted parts make the key independent of the Vary list order served by the
// origin.
func TestVariantKeyStableAcrossVaryOrder(t *testing.T) {
	const base = "http://example.com/p"
	req := getRequest(base, map[string]string{"Accept": "text/html", "Accept-Language": "en"})

	var keyer DefaultKeyer
	a := keyer.VariantKey(base, []string{"Accept", "Accept-Language"}, req)
	b := keyer.VariantKey(base, []string{"Accept-Language", "Accept"}, req)
	if a != b {
		t.Errorf("Vary order changed the key: %q vs %q", a, b)
	}
}

func TestStripDefaultPort(t *testing.T) {
	tests := []struct {
		scheme, host, want string
	}{
		{"http", "example.com:80", "example.com"},
		{"https", "example.com:443", "example.com"},
		{"http", "example.com:443", "example.com:443"},
		{"https", "example.com:80", "example.com:80"},
		{"http", "example.com", "example.com"},
	}
	for _, tt := range tests {
		if got := stripDefaultPort(tt.scheme, tt.host); got != tt.want {
			t.Errorf("stripDefaultPort(%q, %q) = %q, want %q", tt.scheme, tt.host, got, tt.want)
		}
	}
}
