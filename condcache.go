package condcache

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/condcache/condcache/metrics"
)

const (
	// XFromCache is the header added to responses served from the cache.
	// Its value is "1", or "1; store=<name>" for a named store.
	XFromCache = "X-From-Cache"

	// DefaultMaxVariants caps how many variants the registry tracks per base
	// key before evicting the oldest.
	DefaultMaxVariants = 100

	headerETag              = "Etag"
	headerLastModified      = "Last-Modified"
	headerIfMatch           = "If-Match"
	headerIfNoneMatch       = "If-None-Match"
	headerIfModifiedSince   = "If-Modified-Since"
	headerIfUnmodifiedSince = "If-Unmodified-Since"
	headerRange             = "Range"
	headerVary              = "Vary"
	headerCacheControl      = "Cache-Control"
	headerPragma            = "Pragma"
	headerCookie            = "Cookie"
	headerAuthorization     = "Authorization"
	headerLocation          = "Location"
	headerContentLocation   = "Content-Location"
	headerContentLength     = "Content-Length"
	headerContentType       = "Content-Type"
	headerAcceptEncoding    = "Accept-Encoding"

	methodPOST   = "POST"
	methodPUT    = "PUT"
	methodPATCH  = "PATCH"
	methodDELETE = "DELETE"

	cacheControlNoStore        = "no-store"
	cacheControlNoCache        = "no-cache"
	cacheControlMaxAge         = "max-age"
	cacheControlPrivate        = "private"
	cacheControlMustUnderstand = "must-understand"
)

// Worker is the environment-facing shape the engine evaluates: an immutable
// request, an origin continuation, and a scheduler for background work.
type Worker interface {
	// Request returns the request under evaluation. The engine treats it as
	// immutable and clones it before any background use.
	Request() *http.Request

	// Next invokes the origin continuation and returns its verdict, usually a
	// Hit carrying the origin response. A Miss means the origin produced
	// nothing for the engine to consider.
	Next(ctx context.Context) Verdict

	// WaitUntil schedules task to run without blocking the response path. The
	// environment keeps the worker alive until scheduled tasks complete.
	WaitUntil(task func(context.Context))
}

// Engine evaluates requests against an explicit, ordered rule chain wrapped
// around a storage lookup. Construct it with New; a zero Engine is not usable.
type Engine struct {
	cache             Cache
	store             *Store
	keyer             Keyer
	name              string
	rules             []Rule
	logger            *slog.Logger
	collector         metrics.Collector
	markCached        bool
	shouldCache       func(*http.Response) bool
	maxVariants       int
	credentialHeaders []string
}

// New returns an Engine configured by opts. Configuration problems surface
// here, never during evaluation. With no options the engine uses an in-memory
// store, the default keyer, and the default rule chain.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		cache:             NewMemoryCache(),
		keyer:             DefaultKeyer{},
		collector:         metrics.DefaultCollector,
		markCached:        true,
		maxVariants:       DefaultMaxVariants,
		credentialHeaders: []string{headerCookie, headerAuthorization},
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("condcache: %w", err)
		}
	}

	store, err := NewStore(e.cache, StoreConfig{
		Keyer:       e.keyer,
		Name:        e.name,
		MaxVariants: e.maxVariants,
		Collector:   e.collector,
	})
	if err != nil {
		return nil, fmt.Errorf("condcache: %w", err)
	}
	e.store = store
	e.rules = defaultRules(e)

	return e, nil
}

// Store returns the engine's store adapter, for direct use by tooling such as
// prewarmers.
func (e *Engine) Store() *Store {
	return e.store
}

// Evaluate runs the rule chain for w's request and returns the final verdict.
// A Hit carries the response to send; a Miss means the caller should fall
// through to the origin itself.
func (e *Engine) Evaluate(ctx context.Context, w Worker) Verdict {
	start := time.Now()
	req := w.Request()
	ex := &Exchange{
		engine: e,
		worker: w,
		req:    req,
		vals:   extractValidators(req.Header),
	}

	chain := buildChain(e.rules, ex, func(ctx context.Context) Verdict {
		return e.dispatch(ctx, ex)
	})
	verdict := chain(ctx)

	e.collector.RecordDecision(e.name, req.Method, decisionOutcome(ex, verdict), time.Since(start))
	return verdict
}

// dispatch is the innermost step of the chain: the storage lookup for GET
// requests, delegation to the origin otherwise, and the scheduling of
// background store writes and invalidations.
func (e *Engine) dispatch(ctx context.Context, ex *Exchange) Verdict {
	req := ex.req

	if req.Method != http.MethodGet {
		verdict := ex.worker.Next(ctx)
		if resp, ok := verdict.Response(); ok && isUnsafeMethod(req.Method) && resp.StatusCode < 400 {
			e.scheduleInvalidation(ex, resp)
		}
		return verdict
	}

	if resp, ok := e.store.Match(ctx, req); ok {
		ex.fromCache = true
		if e.markCached {
			resp.Header.Set(XFromCache, e.cacheMark())
		}
		return Hit(resp)
	}

	verdict := ex.worker.Next(ctx)
	resp, ok := verdict.Response()
	if !ok {
		return verdict
	}
	if !e.isResponseCacheable(req, resp) {
		return verdict
	}

	snapshot, err := snapshotResponse(resp)
	if err != nil {
		e.log().Warn("failed to buffer response for caching",
			"url", req.URL.String(),
			"error", err)
		return verdict
	}
	e.scheduleStore(ex, snapshot)

	return verdict
}

// scheduleStore queues a fire-and-forget store write through the worker's
// scheduler. Write failures are logged, never propagated.
func (e *Engine) scheduleStore(ex *Exchange, resp *http.Response) {
	req := cloneRequest(ex.req)
	ex.worker.WaitUntil(func(ctx context.Context) {
		if err := e.store.Put(ctx, req, resp); err != nil {
			e.log().Warn("background cache write failed",
				"url", req.URL.String(),
				"error", err)
		}
	})
}

// cacheMark returns the XFromCache value for this engine's store.
func (e *Engine) cacheMark() string {
	if e.name == "" {
		return "1"
	}
	return "1; store=" + e.name
}

// decisionOutcome labels a verdict for metrics.
func decisionOutcome(ex *Exchange, v Verdict) string {
	resp, ok := v.Response()
	switch {
	case !ok:
		return "miss"
	case resp.StatusCode == http.StatusNotModified:
		return "not_modified"
	case resp.StatusCode == http.StatusPreconditionFailed:
		return "precondition_failed"
	case ex.fromCache:
		return "hit"
	default:
		return "origin"
	}
}
