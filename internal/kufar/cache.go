// Package kufar implements the kufar.by integration: resolving a host's
// filter parameter map, building normalized search API queries, and fetching
// listing records.
package kufar

import (
	"sync"

	"kufar_bot/internal/model"
)

// Cache stores resolved filter maps keyed by marketplace host. Entries have
// no expiry; a populated entry is treated as correct for the process lifetime.
type Cache struct {
	mu   sync.Mutex
	maps map[string]model.FilterMap
}

// NewCache creates an empty parameter map cache.
func NewCache() *Cache {
	return &Cache{maps: make(map[string]model.FilterMap)}
}

// Get returns the cached filter map for a host, if any.
func (c *Cache) Get(host string) (model.FilterMap, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.maps[host]
	return m, ok
}

// Set stores the filter map for a host.
func (c *Cache) Set(host string, m model.FilterMap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maps[host] = m
}
