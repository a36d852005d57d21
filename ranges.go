package condcache

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// byteRange is a parsed single-range Range header. end is nil for the
// open-ended form "bytes=<start>-".
type byteRange struct {
	start uint64
	end   *uint64
}

// parseByteRange parses a Range value of the form "bytes=<start>-[<end>]".
// Anything else, including multi-range and suffix-range forms, reports
// ok=false and is treated as if no Range were present.
func parseByteRange(spec string) (byteRange, bool) {
	spec = strings.TrimSpace(spec)
	if len(spec) < len("bytes=") || !strings.EqualFold(spec[:len("bytes=")], "bytes=") {
		return byteRange{}, false
	}
	rest := spec[len("bytes="):]
	if strings.Contains(rest, ",") {
		return byteRange{}, false
	}

	startStr, endStr, found := strings.Cut(rest, "-")
	if !found {
		return byteRange{}, false
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)
	if startStr == "" {
		return byteRange{}, false
	}
	start, err := strconv.ParseUint(startStr, 10, 64)
	if err != nil {
		return byteRange{}, false
	}

	br := byteRange{start: start}
	if endStr != "" {
		end, err := strconv.ParseUint(endStr, 10, 64)
		if err != nil || end < start {
			return byteRange{}, false
		}
		br.end = &end
	}
	return br, true
}

// rangeRule decides whether a cached full response may answer a Range
// request. The store only holds complete representations, so the requested
// range must line up exactly with the representation's resolved length
// (RFC 9110 Section 14.2); anything partial vetoes the entry and forces an
// origin fetch that can produce a correct 206. Origin responses pass through
// untouched. Only 200 candidates are examined.
type rangeRule struct{}

func (rangeRule) Name() string { return "range" }

func (r rangeRule) Apply(ctx context.Context, ex *Exchange, next Next) Verdict {
	verdict := next(ctx)
	if ex.vals.RangeSpec == "" || !ex.fromCache {
		return verdict
	}
	resp, ok := verdict.Response()
	if !ok || resp.StatusCode != http.StatusOK {
		return verdict
	}
	br, ok := parseByteRange(ex.vals.RangeSpec)
	if !ok {
		return verdict
	}

	if br.start != 0 {
		drainDiscardedBody(resp.Body)
		return ex.veto(r)
	}
	if br.end == nil {
		// bytes=0- covers the whole representation.
		return verdict
	}

	length, ok := resolvedLength(resp)
	if !ok {
		drainDiscardedBody(resp.Body)
		return ex.veto(r)
	}
	if length == 0 {
		// Empty representation, nothing partial to serve.
		return verdict
	}
	if *br.end == length-1 {
		return verdict
	}

	drainDiscardedBody(resp.Body)
	return ex.veto(r)
}

var _ Rule = rangeRule{}

// resolvedLength reports the representation length from Content-Length.
func resolvedLength(resp *http.Response) (uint64, bool) {
	if resp.ContentLength >= 0 {
		return uint64(resp.ContentLength), true
	}
	v := resp.Header.Get(headerContentLength)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
