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

// Package cache keeps module build results between passes.
package cache

import (
	"fmt"
	"slices"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"bennypowers.dev/modgraph/pipeline"
)

// DefaultSize is the number of build results kept by default.
const DefaultSize = 8192

// BuildCache is an in-memory LRU of build results keyed by module
// identifier. Results are cloned on the way in and out, so callers may
// attach the returned dependencies to a graph.
type BuildCache struct {
	entries *lru.Cache[string, *pipeline.BuildResult]
	hits    atomic.Int64
	misses  atomic.Int64
}

var _ pipeline.Cache = (*BuildCache)(nil)

// New creates a BuildCache holding up to size results.
func New(size int) (*BuildCache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[string, *pipeline.BuildResult](size)
	if err != nil {
		return nil, fmt.Errorf("create build cache: %w", err)
	}
	return &BuildCache{entries: entries}, nil
}

// Get implements pipeline.Cache.
func (c *BuildCache) Get(key string) (*pipeline.BuildResult, bool) {
	r, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return r.Clone(), true
}

// Set implements pipeline.Cache.
func (c *BuildCache) Set(key string, result *pipeline.BuildResult) {
	c.entries.Add(key, result.Clone())
}

// Remove drops key.
func (c *BuildCache) Remove(key string) {
	c.entries.Remove(key)
}

// Invalidate drops every result that read one of paths and returns how
// many were dropped. Results of modules that left the graph stay cached, so
// edits to their files must reach the cache directly.
func (c *BuildCache) Invalidate(paths ...string) int {
	if len(paths) == 0 {
		return 0
	}
	n := 0
	for _, key := range c.entries.Keys() {
		r, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		if slices.ContainsFunc(r.BuildInfo.FileDependencies, func(f string) bool {
			return slices.Contains(paths, f)
		}) {
			c.Remove(key)
			n++
		}
	}
	return n
}

// Purge drops every entry.
func (c *BuildCache) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached results.
func (c *BuildCache) Len() int {
	return c.entries.Len()
}

// Stats returns the hit and miss counts.
func (c *BuildCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
