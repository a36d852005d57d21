package condcache

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"
)

// variantsSuffix is appended to a base key to address its variant registry.
const variantsSuffix = "|variants"

// variantIndex is the persisted registry of variants stored for one base key.
// It lives in the same Cache as the responses, so it survives restarts and is
// shared by every process using the store.
type variantIndex struct {
	// Vary holds the canonicalized dimension names, in response header order.
	Vary []string `json:"vary"`
	// Variants holds the variant keys in insertion order, oldest first.
	Variants []string `json:"variants"`
	// Updated is the time of the last registry write.
	Updated time.Time `json:"updated"`
}

// variantDimensions returns the Vary names of h that participate in variant
// keys: canonicalized, in header order, with "*" and Accept-Encoding dropped.
// Accept-Encoding negotiates transport encoding, not the representation, and
// stored bodies are identity-encoded.
func variantDimensions(h http.Header) []string {
	var dims []string
	for _, name := range headerAllCommaSepValues(h, headerVary) {
		canonical := http.CanonicalHeaderKey(name)
		if canonical == "" || canonical == "*" || canonical == headerAcceptEncoding {
			continue
		}
		dims = append(dims, canonical)
	}
	return dims
}

// registerVariant records variant in the registry for base. A change in the
// dimension list resets the registry, because keys derived under the old
// dimensions can no longer be reproduced; the orphaned entries are removed
// best effort. The registry is capped at maxVariants, evicting oldest first.
func (s *Store) registerVariant(ctx context.Context, base string, dims []string, variant string) error {
	index, ok := s.loadVariants(ctx, base)
	if !ok || !slices.Equal(index.Vary, dims) {
		if ok {
			s.dropVariants(ctx, index)
		}
		index = variantIndex{Vary: dims}
	}

	if !slices.Contains(index.Variants, variant) {
		index.Variants = append(index.Variants, variant)
		for len(index.Variants) > s.maxVariants {
			oldest := index.Variants[0]
			index.Variants = index.Variants[1:]
			_ = s.cache.Delete(ctx, s.prefixed(oldest)) //nolint:errcheck // best effort
		}
	}
	index.Updated = time.Now().UTC()

	return s.saveVariants(ctx, base, index)
}

// loadVariants reads the registry for base. Read and decode problems are
// logged and reported as absence; an undecodable registry is dropped.
func (s *Store) loadVariants(ctx context.Context, base string) (variantIndex, bool) {
	key := s.prefixed(base + variantsSuffix)
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		GetLogger().Warn("variant registry read failed",
			"key", key,
			"error", err)
		return variantIndex{}, false
	}
	if !ok {
		return variantIndex{}, false
	}

	var index variantIndex
	if err := json.Unmarshal(data, &index); err != nil {
		GetLogger().Warn("dropping undecodable variant registry",
			"key", key,
			"error", err)
		_ = s.cache.Delete(ctx, key) //nolint:errcheck // best effort
		return variantIndex{}, false
	}
	return index, true
}

func (s *Store) saveVariants(ctx context.Context, base string, index variantIndex) error {
	data, err := json.Marshal(index)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.prefixed(base+variantsSuffix), data)
}

// dropVariants removes the entries listed in index, best effort.
func (s *Store) dropVariants(ctx context.Context, index variantIndex) {
	for _, variant := range index.Variants {
		_ = s.cache.Delete(ctx, s.prefixed(variant)) //nolint:errcheck // best effort
	}
}
