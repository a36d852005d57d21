package condcache

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
)

// preconditionDetails describes a failed precondition in the JSON body of a
// generated 412.
type preconditionDetails struct {
	Header       string   `json:"header"`
	Expected     []string `json:"expected,omitempty"`
	Actual       string   `json:"actual,omitempty"`
	Since        string   `json:"since,omitempty"`
	LastModified string   `json:"lastModified,omitempty"`
}

type preconditionBody struct {
	Status  int                 `json:"status"`
	Error   string              `json:"error"`
	Details preconditionDetails `json:"details"`
}

// ifMatchRule enforces If-Match with the strong comparison function
// (RFC 9110 Section 13.1.1). Weak request tags were dropped at extraction, so
// every remaining member is eligible. Responses without an ETag pass through
// unexamined.
type ifMatchRule struct{}

func (ifMatchRule) Name() string { return "etag-if-match" }

func (r ifMatchRule) Apply(ctx context.Context, ex *Exchange, next Next) Verdict {
	verdict := next(ctx)
	if !ex.vals.HasIfMatch() {
		return verdict
	}
	resp, ok := verdict.Response()
	if !ok {
		return verdict
	}
	tag, ok := responseEntityTag(resp.Header.Get(headerETag))
	if !ok {
		return verdict
	}
	if ex.vals.IfMatchAny || anyStrongMatch(ex.vals.IfMatch, tag) {
		return verdict
	}

	drainDiscardedBody(resp.Body)
	return Hit(respond412(ex.req, preconditionDetails{
		Header:   headerIfMatch,
		Expected: tagStrings(ex.vals.IfMatch),
		Actual:   tag.String(),
	}))
}

var _ Rule = ifMatchRule{}

// ifNoneMatchRule enforces If-None-Match with the weak comparison function
// (RFC 9110 Section 13.1.2). A match replaces the candidate with a bodiless
// 304. A mismatch against a cached candidate vetoes it: a client holding a
// tag the store does not know about is evidence the entry may be out of date,
// so the origin must answer. Origin responses pass through on mismatch; the
// origin is authoritative.
type ifNoneMatchRule struct{}

func (ifNoneMatchRule) Name() string { return "etag-if-none-match" }

func (r ifNoneMatchRule) Apply(ctx context.Context, ex *Exchange, next Next) Verdict {
	verdict := next(ctx)
	if !ex.vals.HasIfNoneMatch() {
		return verdict
	}
	resp, ok := verdict.Response()
	if !ok {
		return verdict
	}
	if resp.StatusCode == http.StatusPreconditionFailed {
		// An inner rule already failed a precondition; its answer stands.
		return verdict
	}

	if ex.vals.IfNoneMatchAny {
		return Hit(respond304(resp))
	}
	if tag, ok := responseEntityTag(resp.Header.Get(headerETag)); ok {
		if anyWeakMatch(ex.vals.IfNoneMatch, tag) {
			return Hit(respond304(resp))
		}
	}
	if ex.fromCache {
		drainDiscardedBody(resp.Body)
		return ex.veto(r)
	}
	return verdict
}

var _ Rule = ifNoneMatchRule{}

// respond304 replaces resp with a bodiless 304 carrying resp's end-to-end
// headers (RFC 9110 Section 15.4.5). Content-Length goes away with the body.
// resp's body is drained and closed.
func respond304(resp *http.Response) *http.Response {
	drainDiscardedBody(resp.Body)

	headers := make(http.Header, len(resp.Header))
	for _, name := range endToEndHeaders(resp.Header) {
		vals := make([]string, len(resp.Header[name]))
		copy(vals, resp.Header[name])
		headers[name] = vals
	}
	headers.Del(headerContentLength)

	return &http.Response{
		Status:     "304 Not Modified",
		StatusCode: http.StatusNotModified,
		Proto:      resp.Proto,
		ProtoMajor: resp.ProtoMajor,
		ProtoMinor: resp.ProtoMinor,
		Header:     headers,
		Body:       http.NoBody,
		Request:    resp.Request,
	}
}

// respond412 builds a 412 whose JSON body carries the rejected validator and
// the representation's current state.
func respond412(req *http.Request, details preconditionDetails) *http.Response {
	body, err := json.Marshal(preconditionBody{
		Status:  http.StatusPreconditionFailed,
		Error:   "Precondition Failed",
		Details: details,
	})
	if err != nil {
		body = []byte(`{"status":412,"error":"Precondition Failed"}`)
	}

	headers := make(http.Header, 2)
	headers.Set(headerContentType, "application/json")
	headers.Set(headerContentLength, strconv.Itoa(len(body)))

	return &http.Response{
		Status:        "412 Precondition Failed",
		StatusCode:    http.StatusPreconditionFailed,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        headers,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func tagStrings(tags []EntityTag) []string {
	out := make([]string, len(tags))
	for i, tag := range tags {
		out[i] = tag.String()
	}
	return out
}
