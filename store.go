package condcache

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"regexp"
	"time"

	"github.com/condcache/condcache/metrics"
)

// A Cache is the key-value backend a Store reads and writes. Implementations
// live in the backend subpackages; NewMemoryCache provides an in-process
// default.
type Cache interface {
	// Get returns the []byte representation of a cached response and a bool
	// set to true if the key was present.
	Get(ctx context.Context, key string) (responseBytes []byte, ok bool, err error)
	// Set stores the []byte representation of a response against a key.
	Set(ctx context.Context, key string, responseBytes []byte) error
	// Delete removes the value associated with the key.
	Delete(ctx context.Context, key string) error
}

// storeNameRe bounds store names to a safe key-prefix alphabet.
var storeNameRe = regexp.MustCompile(`^[a-z0-9._-]{1,64}$`)

// StoreConfig configures a Store.
type StoreConfig struct {
	// Keyer derives cache keys. Optional - defaults to DefaultKeyer.
	Keyer Keyer

	// Name namespaces every key with "<name>:". Optional - empty selects the
	// default, unprefixed store. Must match ^[a-z0-9._-]{1,64}$ when set.
	Name string

	// MaxVariants caps the variant registry per base key. Optional - defaults
	// to DefaultMaxVariants.
	MaxVariants int

	// Collector receives store operation metrics. Optional - defaults to
	// metrics.DefaultCollector.
	Collector metrics.Collector
}

// Store adapts a Cache into the Vary-aware response store used by the engine.
// Responses are persisted in wire format under their base key and, when Vary
// applies, under a per-variant key; the variant registry for each base key
// lives in the same Cache, so it survives process restarts.
type Store struct {
	cache       Cache
	keyer       Keyer
	name        string
	maxVariants int
	collector   metrics.Collector
}

// NewStore returns a Store over cache. Configuration problems are reported
// here, never during request evaluation.
func NewStore(cache Cache, config StoreConfig) (*Store, error) {
	if cache == nil {
		return nil, errors.New("store: cache is required")
	}
	if config.Name != "" && !storeNameRe.MatchString(config.Name) {
		return nil, fmt.Errorf("store: invalid store name %q", config.Name)
	}
	if config.MaxVariants < 0 {
		return nil, fmt.Errorf("store: negative max variants %d", config.MaxVariants)
	}

	s := &Store{
		cache:       cache,
		keyer:       config.Keyer,
		name:        config.Name,
		maxVariants: config.MaxVariants,
		collector:   config.Collector,
	}
	if s.keyer == nil {
		s.keyer = DefaultKeyer{}
	}
	if s.maxVariants == 0 {
		s.maxVariants = DefaultMaxVariants
	}
	if s.collector == nil {
		s.collector = metrics.DefaultCollector
	}
	return s, nil
}

// Name returns the store's namespace, empty for the default store.
func (s *Store) Name() string { return s.name }

// prefixed returns key namespaced by the store name.
func (s *Store) prefixed(key string) string {
	if s.name == "" {
		return key
	}
	return s.name + ":" + key
}

// Match returns the stored response for req. The base entry is fetched first;
// if it declares no variant dimensions it is returned directly, otherwise a
// second lookup runs against the variant key derived from req's current
// header values. A miss on the second lookup means a different variant is
// needed, not an error. Store errors are logged and degrade to a miss.
func (s *Store) Match(ctx context.Context, req *http.Request) (*http.Response, bool) {
	base := s.keyer.BaseKey(req)

	resp, ok := s.getResponse(ctx, req, s.prefixed(base))
	if !ok {
		return nil, false
	}
	if varyWildcard(resp.Header) {
		drainDiscardedBody(resp.Body)
		return nil, false
	}
	dims := variantDimensions(resp.Header)
	if len(dims) == 0 {
		return resp, true
	}

	// The base entry only reveals the Vary dimensions; the representation for
	// this request's header values lives under the variant key.
	drainDiscardedBody(resp.Body)
	variant := s.keyer.VariantKey(base, dims, req)
	return s.getResponse(ctx, req, s.prefixed(variant))
}

// Put stores resp for req: always under the base key, and additionally under
// the variant key when resp declares variant dimensions, updating the variant
// registry alongside. Responses declaring "Vary: *" are rejected; there is no
// stable key to derive for them. Put consumes resp.Body.
func (s *Store) Put(ctx context.Context, req *http.Request, resp *http.Response) error {
	if varyWildcard(resp.Header) {
		return errors.New("store: response with Vary: * is not cacheable")
	}
	base := s.keyer.BaseKey(req)

	data, err := encodeResponse(resp)
	if err != nil {
		return fmt.Errorf("store: encode response: %w", err)
	}

	if err := s.setEntry(ctx, s.prefixed(base), data); err != nil {
		return err
	}

	dims := variantDimensions(resp.Header)
	if len(dims) == 0 {
		return nil
	}
	variant := s.keyer.VariantKey(base, dims, req)
	if err := s.setEntry(ctx, s.prefixed(variant), data); err != nil {
		return err
	}
	return s.registerVariant(ctx, base, dims, variant)
}

// Delete removes every stored entry for req's base key: the variants listed
// in the registry, the registry itself, and the base entry. Partial failures
// are joined so callers see everything that went wrong.
func (s *Store) Delete(ctx context.Context, req *http.Request) error {
	start := time.Now()
	base := s.keyer.BaseKey(req)
	var errs []error

	if index, ok := s.loadVariants(ctx, base); ok {
		for _, variant := range index.Variants {
			if err := s.cache.Delete(ctx, s.prefixed(variant)); err != nil {
				errs = append(errs, fmt.Errorf("delete variant %q: %w", variant, err))
			}
		}
		if err := s.cache.Delete(ctx, s.prefixed(base+variantsSuffix)); err != nil {
			errs = append(errs, fmt.Errorf("delete variant registry: %w", err))
		}
	}
	if err := s.cache.Delete(ctx, s.prefixed(base)); err != nil {
		errs = append(errs, fmt.Errorf("delete base entry: %w", err))
	}

	err := errors.Join(errs...)
	s.collector.RecordStoreOperation(s.name, "delete", errResult(err), time.Since(start))
	return err
}

// getResponse loads and decodes one entry. Undecodable entries are dropped so
// they cannot wedge a key forever.
func (s *Store) getResponse(ctx context.Context, req *http.Request, key string) (*http.Response, bool) {
	start := time.Now()
	data, ok, err := s.cache.Get(ctx, key)
	s.collector.RecordStoreOperation(s.name, "get", getResult(ok, err), time.Since(start))
	if err != nil {
		GetLogger().Warn("cache read failed",
			"key", key,
			"error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	resp, err := decodeResponse(data, req)
	if err != nil {
		GetLogger().Warn("dropping undecodable cache entry",
			"key", key,
			"error", err)
		_ = s.cache.Delete(ctx, key) //nolint:errcheck // best effort
		return nil, false
	}
	return resp, true
}

func (s *Store) setEntry(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := s.cache.Set(ctx, key, data)
	s.collector.RecordStoreOperation(s.name, "set", errResult(err), time.Since(start))
	if err != nil {
		return fmt.Errorf("store: write %q: %w", key, err)
	}
	s.collector.RecordEntrySize(s.name, int64(len(data)))
	return nil
}

// snapshotResponse buffers resp's body so the response can both be returned
// to the client and handed to a background store write. resp.Body is replaced
// with an equivalent in-memory reader; the returned copy is fully detached.
func snapshotResponse(resp *http.Response) (*http.Response, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		_ = resp.Body.Close() //nolint:errcheck // already failing
		return nil, err
	}
	if err := resp.Body.Close(); err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	clone := new(http.Response)
	*clone = *resp
	clone.Header = cloneHeader(resp.Header)
	clone.Body = io.NopCloser(bytes.NewReader(body))
	return clone, nil
}

// encodeResponse serializes resp in wire format with hop-by-hop headers
// stripped (RFC 9110 Section 7.6.1).
func encodeResponse(resp *http.Response) ([]byte, error) {
	stripHopByHopHeaders(resp.Header)
	return httputil.DumpResponse(resp, true)
}

// decodeResponse parses a stored wire-format response, associating it with
// req.
func decodeResponse(data []byte, req *http.Request) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), req)
}

func getResult(ok bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case ok:
		return "hit"
	default:
		return "miss"
	}
}

func errResult(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
