/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package packagejson

import "sync"

// Cache holds parsed package.json files across resolutions and passes.
type Cache interface {
	// Get returns the cached package for path.
	Get(path string) (*PackageJSON, bool)

	// Invalidate drops path, typically because the file changed.
	Invalidate(path string)

	// Clear drops every entry.
	Clear()

	// GetOrLoad returns the cached package or loads it. Concurrent callers
	// for the same path share one load.
	GetOrLoad(path string, loader func() (*PackageJSON, error)) (*PackageJSON, error)
}

type cacheEntry struct {
	pkg   *PackageJSON
	err   error
	ready chan struct{}
}

// MemoryCache is a concurrency-safe in-memory Cache. Failed loads are
// remembered too, so a missing package.json is probed once per path until
// it is invalidated.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*cacheEntry)}
}

// Get returns a successfully loaded package. Loads still in flight are not
// visible.
func (c *MemoryCache) Get(path string) (*PackageJSON, bool) {
	c.mu.Lock()
	e, ok := c.entries[path]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
		return e.pkg, e.pkg != nil
	default:
		return nil, false
	}
}

// Invalidate drops path.
func (c *MemoryCache) Invalidate(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// Len returns the number of cached paths, including failed loads.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrLoad returns the cached result for path or runs loader. Callers
// arriving during a load wait for it.
func (c *MemoryCache) GetOrLoad(path string, loader func() (*PackageJSON, error)) (*PackageJSON, error) {
	c.mu.Lock()
	if e, ok := c.entries[path]; ok {
		c.mu.Unlock()
		<-e.ready
		return e.pkg, e.err
	}
	e := &cacheEntry{ready: make(chan struct{})}
	c.entries[path] = e
	c.mu.Unlock()

	func() {
		defer close(e.ready)
		e.pkg, e.err = loader()
	}()
	return e.pkg, e.err
}
