package hydra

import "sync"

// DocumentCache holds generic documents produced from relations that were
// inlined in a parent document. Entries are best-effort hints, never
// authoritative: consumers must tolerate a miss. The cache is unbounded for
// the lifetime of the owning provider and is never evicted.
//
// Each Provider owns its cache, so several providers in one process do not
// cross-contaminate.
type DocumentCache struct {
	mu       sync.RWMutex
	disabled bool
	docs     map[string]Document
}

// NewDocumentCache creates an empty, enabled cache.
func NewDocumentCache() *DocumentCache {
	return &DocumentCache{docs: make(map[string]Document)}
}

// Disable turns the cache off: Put becomes a no-op and Get always misses.
func (c *DocumentCache) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = true
}

// Put stores a document under its IRI. Last writer wins.
func (c *DocumentCache) Put(iri string, doc Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled || iri == "" {
		return
	}
	c.docs[iri] = doc
}

// Get looks up a document by IRI.
func (c *DocumentCache) Get(iri string) (Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.disabled {
		return nil, false
	}
	doc, ok := c.docs[iri]
	return doc, ok
}

// Len returns the number of cached documents.
func (c *DocumentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}
