package resolver

import (
	"context"
	"sync"

	"github.com/decentrl/decentrl-go/diddoc"
)

// Cache is an explicit did-to-document cache. Entries have no invalidation;
// they are treated as valid for the lifetime of a process run, so key
// rotation published mid-run is honored only by fresh processes. Safe for
// concurrent use from multiple connections.
type Cache struct {
	mu   sync.RWMutex
	docs map[string]*diddoc.Document
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{docs: make(map[string]*diddoc.Document)}
}

// Get returns the cached document for a DID.
func (c *Cache) Get(did string) (*diddoc.Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[did]
	return doc, ok
}

// Set stores a document under its DID.
func (c *Cache) Set(did string, doc *diddoc.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[did] = doc
}

// CachingResolver serves resolutions from a Cache, falling back to the inner
// resolver on a miss and storing the result.
type CachingResolver struct {
	inner Resolver
	cache *Cache
}

// NewCachingResolver wraps inner with the given cache.
func NewCachingResolver(inner Resolver, cache *Cache) *CachingResolver {
	if cache == nil {
		cache = NewCache()
	}
	return &CachingResolver{inner: inner, cache: cache}
}

// Resolve implements Resolver.
func (r *CachingResolver) Resolve(ctx context.Context, didOrKid string) (*diddoc.Document, error) {
	did := StripFragment(didOrKid)
	if doc, ok := r.cache.Get(did); ok {
		return doc, nil
	}

	doc, err := r.inner.Resolve(ctx, did)
	if err != nil {
		return nil, err
	}
	r.cache.Set(did, doc)
	return doc, nil
}
