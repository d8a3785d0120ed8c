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

package resolve

import (
	"sync"
	"sync/atomic"
)

// Stats counts cached resolutions.
type Stats struct {
	Hits   int64
	Misses int64
}

type cachedResult struct {
	result Result
	err    error
}

// Factory memoizes resolutions across a build and hands out resolvers for
// per-dependency options. Requests carrying their own ResolveOptions bypass
// the result cache.
type Factory struct {
	base *Resolver

	results sync.Map // string -> cachedResult

	mu      sync.Mutex
	derived map[string]*Resolver

	hits   atomic.Int64
	misses atomic.Int64
}

// NewFactory creates a Factory around base.
func NewFactory(base *Resolver) *Factory {
	return &Factory{
		base:    base,
		derived: make(map[string]*Resolver),
	}
}

// Base returns the resolver without overrides.
func (f *Factory) Base() *Resolver {
	return f.base
}

// Resolve resolves req, answering from the cache when it can.
func (f *Factory) Resolve(req Request) (Result, error) {
	if req.Options != nil {
		return f.base.Resolve(req)
	}
	key := string(req.Category) + "\x00" + req.Context + "\x00" + req.Request
	if v, ok := f.results.Load(key); ok {
		f.hits.Add(1)
		c := v.(cachedResult)
		return c.result, c.err
	}
	f.misses.Add(1)
	res, err := f.base.Resolve(req)
	f.results.Store(key, cachedResult{result: res, err: err})
	return res, err
}

// Invalidate drops every cached resolution and package.json, typically
// because files were added, removed or a manifest changed.
func (f *Factory) Invalidate() {
	f.results.Clear()
	f.base.PackageCache().Clear()
}

// Stats returns the cache counters.
func (f *Factory) Stats() Stats {
	return Stats{Hits: f.hits.Load(), Misses: f.misses.Load()}
}
