package condcache

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/condcache/condcache/metrics"
)

// Option is a function that configures an Engine.
// Use the With* functions to create Options.
type Option func(*Engine) error

// WithCache sets the Cache backend the engine stores responses in.
// Default: an in-process MemoryCache.
func WithCache(c Cache) Option {
	return func(e *Engine) error {
		if c == nil {
			return fmt.Errorf("cache cannot be nil")
		}
		e.cache = c
		return nil
	}
}

// WithCacheName selects a named store: every key is prefixed with "<name>:",
// so several engines can share one Cache backend without colliding.
// The name must match ^[a-z0-9._-]{1,64}$.
// Default: "" (the default, unprefixed store).
func WithCacheName(name string) Option {
	return func(e *Engine) error {
		if !storeNameRe.MatchString(name) {
			return fmt.Errorf("invalid cache name %q: must match %s", name, storeNameRe.String())
		}
		e.name = name
		return nil
	}
}

// WithKeyer replaces the cache key derivation.
// Default: DefaultKeyer.
func WithKeyer(k Keyer) Option {
	return func(e *Engine) error {
		if k == nil {
			return fmt.Errorf("keyer cannot be nil")
		}
		e.keyer = k
		return nil
	}
}

// WithLogger sets the logger used for evaluation and background-write
// logging.
// Default: the package-level logger, see SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = l
		return nil
	}
}

// WithCollector sets the metrics collector receiving decision, veto, and
// store-operation events.
// Default: metrics.DefaultCollector, a no-op.
func WithCollector(c metrics.Collector) Option {
	return func(e *Engine) error {
		if c == nil {
			return fmt.Errorf("collector cannot be nil")
		}
		e.collector = c
		return nil
	}
}

// WithMarkCachedResponses configures whether responses served from the store
// include the X-From-Cache header.
// Default: true.
func WithMarkCachedResponses(mark bool) Option {
	return func(e *Engine) error {
		e.markCached = mark
		return nil
	}
}

// WithShouldCache allows configuring non-standard caching behavior based on
// the response. The provided function replaces the status-code check when
// deciding whether to store a response; Cache-Control directives are still
// respected.
// Default: nil, meaning the understood status codes of RFC 9110 Section 15.1
// are cacheable.
func WithShouldCache(fn func(*http.Response) bool) Option {
	return func(e *Engine) error {
		e.shouldCache = fn
		return nil
	}
}

// WithMaxVariants caps how many variants the registry tracks per base key;
// the oldest entry is evicted when the cap is exceeded.
// Default: DefaultMaxVariants.
func WithMaxVariants(n int) Option {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("max variants must be positive, got %d", n)
		}
		e.maxVariants = n
		return nil
	}
}

// WithCredentialHeaders replaces the header names the credential-exclusion
// rule checks. Names are canonicalized. An empty list disables the rule;
// only do that for caches that are truly private per user.
// Default: Cookie and Authorization.
func WithCredentialHeaders(names []string) Option {
	return func(e *Engine) error {
		canonical := make([]string, 0, len(names))
		for _, name := range names {
			if name == "" {
				return fmt.Errorf("credential header name cannot be empty")
			}
			canonical = append(canonical, http.CanonicalHeaderKey(name))
		}
		e.credentialHeaders = canonical
		return nil
	}
}
