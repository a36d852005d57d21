package condcache

import (
	"context"
	"net/http"
	"net/url"
)

// scheduleInvalidation queues removal of the stored entries affected by a
// successful unsafe-method response (RFC 9111 Section 4.4): the request URI
// plus any same-origin Location and Content-Location targets. The work runs
// through the worker's scheduler so the response is not delayed; failures are
// logged, never propagated.
func (e *Engine) scheduleInvalidation(ex *Exchange, resp *http.Response) {
	req := cloneRequest(ex.req)
	location := resp.Header.Get(headerLocation)
	contentLocation := resp.Header.Get(headerContentLocation)

	ex.worker.WaitUntil(func(ctx context.Context) {
		e.invalidate(ctx, req.URL, "request-uri")
		e.invalidateHeaderURI(ctx, req.URL, location, headerLocation)
		e.invalidateHeaderURI(ctx, req.URL, contentLocation, headerContentLocation)
	})
}

// invalidateHeaderURI resolves a Location-style header value against the
// request URL and invalidates it when it stays on the same origin. RFC 9111
// restricts invalidation to same-origin URIs so a response cannot evict
// entries it does not own.
func (e *Engine) invalidateHeaderURI(ctx context.Context, base *url.URL, value, headerName string) {
	if value == "" {
		return
	}
	target, err := base.Parse(value)
	if err != nil {
		e.log().Debug("skipping invalidation of unparsable header URI",
			"header", headerName,
			"value", value,
			"error", err)
		return
	}
	if !isSameOrigin(base, target) {
		e.log().Debug("skipping cross-origin invalidation",
			"header", headerName,
			"request_origin", origin(base),
			"target_origin", origin(target))
		return
	}
	e.invalidate(ctx, target, headerName)
}

// invalidate removes the stored entries for target. Only GET responses are
// ever stored, so a single Delete covers the URI.
func (e *Engine) invalidate(ctx context.Context, target *url.URL, source string) {
	req := &http.Request{Method: http.MethodGet, URL: target}
	if err := e.store.Delete(ctx, req); err != nil {
		e.log().Warn("failed to invalidate cache entry",
			"url", target.String(),
			"source", source,
			"error", err)
		return
	}
	e.log().Debug("invalidated cache entry",
		"url", target.String(),
		"source", source)
}

// isSameOrigin reports whether two URLs share scheme and host, the origin
// boundary of RFC 9111 Section 4.4.
func isSameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
