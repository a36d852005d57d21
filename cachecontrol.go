package condcache

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// cacheControl is a map of Cache-Control directive names to their values.
type cacheControl map[string]string

// parseCacheControl parses a Cache-Control header into a directive map.
// Duplicate directives keep the first occurrence and log a warning
// (RFC 9111 Section 4.2.1). Malformed members are skipped; parsing never
// fails.
func parseCacheControl(headers http.Header, log *slog.Logger) cacheControl {
	cc := cacheControl{}
	seen := make(map[string]bool)
	ccHeader := headers.Get(headerCacheControl)

	for _, part := range strings.Split(ccHeader, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		directive, value, _ := strings.Cut(part, "=")
		directive = strings.ToLower(strings.TrimSpace(directive))
		value = strings.Trim(strings.TrimSpace(value), `"`)

		if seen[directive] {
			log.Warn("duplicate Cache-Control directive, keeping first value",
				"directive", directive,
				"ignored_value", value)
			continue
		}
		seen[directive] = true
		cc[directive] = value
	}

	return cc
}

func (cc cacheControl) has(name string) bool {
	_, ok := cc[name]
	return ok
}

// maxAgeZero reports whether cc demands an immediately fresh response.
// Values that do not parse as an integer are ignored; negative values are
// treated as zero (RFC 9111 Section 1.2.2).
func (cc cacheControl) maxAgeZero() bool {
	v, ok := cc[cacheControlMaxAge]
	if !ok || v == "" {
		return false
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return false
	}
	return secs <= 0
}

// cacheControlRule honors request freshness directives before any storage
// lookup (RFC 9111 Section 5.2.1).
//
// no-store bypasses the cache outright. no-cache and max-age=0 bypass it too,
// unless the request carries conditional validators: those requests stay in
// the chain so the precondition rules can still answer 304 or 412 from cached
// metadata. Pragma: no-cache counts as no-cache when Cache-Control is absent
// (RFC 9111 Section 5.4).
type cacheControlRule struct{}

func (cacheControlRule) Name() string { return "cache-control" }

func (r cacheControlRule) Apply(ctx context.Context, ex *Exchange, next Next) Verdict {
	cc := parseCacheControl(ex.req.Header, ex.engine.log())

	if cc.has(cacheControlNoStore) {
		return ex.veto(r)
	}

	wantsFresh := cc.has(cacheControlNoCache) || cc.maxAgeZero()
	if !wantsFresh && ex.req.Header.Get(headerCacheControl) == "" {
		wantsFresh = pragmaNoCache(ex.req.Header)
	}
	if wantsFresh && !ex.vals.HasConditional() {
		return ex.veto(r)
	}

	return next(ctx)
}

var _ Rule = cacheControlRule{}

func pragmaNoCache(headers http.Header) bool {
	for _, v := range headerAllCommaSepValues(headers, headerPragma) {
		if strings.EqualFold(v, cacheControlNoCache) {
			return true
		}
	}
	return false
}
