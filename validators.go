package condcache

import (
	"net/http"
	"time"
)

// Validators captures the conditional request headers of a request in a single
// pass, so that every rule works from the same parsed view.
//
// Per RFC 9110 Section 13.1.1, If-Match only ever uses the strong comparison
// function, so weak members can never match and are dropped at parse time.
// If-None-Match uses the weak comparison function, so its members are
// normalized to their strong form. Malformed HTTP-dates are treated as absent.
type Validators struct {
	// IfMatch holds the strong members of If-Match. Empty when the header is
	// absent or listed only weak tags.
	IfMatch []EntityTag

	// IfMatchAny is set when If-Match listed "*".
	IfMatchAny bool

	// IfNoneMatch holds the members of If-None-Match with weakness stripped.
	IfNoneMatch []EntityTag

	// IfNoneMatchAny is set when If-None-Match listed "*".
	IfNoneMatchAny bool

	// IfModifiedSince and IfUnmodifiedSince are nil when absent or malformed.
	IfModifiedSince   *time.Time
	IfUnmodifiedSince *time.Time

	// RangeSpec is the raw Range header value, consumed by the range rule.
	RangeSpec string
}

// extractValidators parses the conditional headers of h.
func extractValidators(h http.Header) *Validators {
	v := &Validators{
		RangeSpec: h.Get(headerRange),
	}

	if raw := h.Get(headerIfMatch); raw != "" {
		tags, wildcard := parseETagList(raw)
		v.IfMatchAny = wildcard
		for _, tag := range tags {
			if tag.Weak() {
				continue
			}
			v.IfMatch = append(v.IfMatch, tag)
		}
	}

	if raw := h.Get(headerIfNoneMatch); raw != "" {
		tags, wildcard := parseETagList(raw)
		v.IfNoneMatchAny = wildcard
		for _, tag := range tags {
			v.IfNoneMatch = append(v.IfNoneMatch, EntityTag{value: tag.Value()})
		}
	}

	v.IfModifiedSince = parseHTTPDate(h.Get(headerIfModifiedSince))
	v.IfUnmodifiedSince = parseHTTPDate(h.Get(headerIfUnmodifiedSince))

	return v
}

// HasConditional reports whether any conditional validator is present. The
// cache-control rule uses it to let revalidation requests through to the
// conditional rules instead of vetoing them outright.
func (v *Validators) HasConditional() bool {
	return len(v.IfMatch) > 0 || v.IfMatchAny ||
		len(v.IfNoneMatch) > 0 || v.IfNoneMatchAny ||
		v.IfModifiedSince != nil || v.IfUnmodifiedSince != nil
}

// HasIfMatch reports whether the request carried a usable If-Match validator.
func (v *Validators) HasIfMatch() bool {
	return len(v.IfMatch) > 0 || v.IfMatchAny
}

// HasIfNoneMatch reports whether the request carried If-None-Match.
func (v *Validators) HasIfNoneMatch() bool {
	return len(v.IfNoneMatch) > 0 || v.IfNoneMatchAny
}

// parseHTTPDate parses an HTTP-date in any of the three formats accepted by
// RFC 9110 Section 5.6.7. Malformed dates fail open and report absent.
func parseHTTPDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := http.ParseTime(value)
	if err != nil {
		return nil
	}
	return &t
}
