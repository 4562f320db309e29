package embed

import (
	"fmt"
	"strings"
)

// ProviderStatic is the only built-in provider.
const ProviderStatic = "static"

// NewEmbedder builds the configured embedder, wrapped in an LRU cache when
// cacheSize > 0.
func NewEmbedder(provider string, dims, cacheSize int) (Embedder, error) {
	var e Embedder
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderStatic:
		e = NewStaticEmbedder(dims)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (supported: %s)", provider, ProviderStatic)
	}
	if cacheSize > 0 {
		e = NewCachedEmbedder(e, cacheSize)
	}
	return e, nil
}
