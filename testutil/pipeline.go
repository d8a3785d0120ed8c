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

package testutil

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"bennypowers.dev/modgraph/graph"
	"bennypowers.dev/modgraph/pipeline"
)

// FakeFactory resolves requests through a fixed table. Requests map to a
// resource path; an empty path means the request is ignored, and requests
// missing from the table fail to resolve.
type FakeFactory struct {
	Modules map[string]string

	mu    sync.Mutex
	calls map[string]int
}

// Create implements pipeline.ModuleFactory.
func (f *FakeFactory) Create(_ context.Context, data *pipeline.FactorizeData) (*graph.Module, error) {
	req := data.Request()
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[req]++
	f.mu.Unlock()

	res, ok := f.Modules[req]
	if !ok {
		data.MissingDependencies = append(data.MissingDependencies, path.Join(data.Context, req))
		return nil, fmt.Errorf("can't resolve %q in %q", req, data.Context)
	}
	if res == "" {
		return nil, nil
	}
	data.FileDependencies = append(data.FileDependencies, res)
	return &graph.Module{
		Identifier: graph.NewModuleIdentifier(graph.ModuleJavaScript, res, data.Layer),
		Type:       graph.ModuleJavaScript,
		Resource:   res,
		RawRequest: req,
		Layer:      data.Layer,
		Context:    path.Dir(res),
	}, nil
}

// Calls returns how often req was factorized.
func (f *FakeFactory) Calls(req string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[req]
}

// FakeSource describes what building a resource yields.
type FakeSource struct {
	// Imports are static imports. A request may name bindings after a
	// colon: "./b.js:foo,bar". A leading "type " marks a weak import.
	Imports []string
	// Dynamic are dynamic import requests, one async block each.
	Dynamic []string
	Exports []string
	Fail    bool
}

// FakeBuilder builds resources from a table of sources.
type FakeBuilder struct {
	mu      sync.Mutex
	sources map[string]FakeSource
	builds  map[string]int
}

// NewFakeBuilder creates a builder over sources keyed by resource path.
func NewFakeBuilder(sources map[string]FakeSource) *FakeBuilder {
	return &FakeBuilder{sources: sources, builds: make(map[string]int)}
}

// SetSource replaces the source of a resource.
func (b *FakeBuilder) SetSource(resource string, src FakeSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sources[resource] = src
}

// Builds returns how often resource was built.
func (b *FakeBuilder) Builds(resource string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.builds[resource]
}

// Build implements pipeline.ModuleBuilder.
func (b *FakeBuilder) Build(_ context.Context, req pipeline.BuildRequest) (*pipeline.BuildResult, error) {
	b.mu.Lock()
	b.builds[req.Resource]++
	src, ok := b.sources[req.Resource]
	b.mu.Unlock()

	if !ok {
		return nil, errors.New("no such file")
	}
	if src.Fail {
		return nil, errors.New("unexpected token")
	}

	result := &pipeline.BuildResult{
		BuildInfo: graph.BuildInfo{
			Hash:             req.Resource,
			Cacheable:        true,
			FileDependencies: []string{req.Resource},
		},
		Exports: &graph.ExportsInfo{Provided: src.Exports},
	}
	for i, spec := range src.Imports {
		weak := false
		if rest, ok := strings.CutPrefix(spec, "type "); ok {
			spec, weak = rest, true
		}
		request, names, _ := strings.Cut(spec, ":")
		dep := graph.NewDependency(graph.TypeESMImport, request)
		dep.Weak = weak
		dep.Line = i + 1
		if names != "" {
			dep.Names = strings.Split(names, ",")
		}
		result.Dependencies = append(result.Dependencies, dep)
	}
	for _, request := range src.Dynamic {
		result.Blocks = append(result.Blocks, pipeline.BlockResult{
			Request:      request,
			Dependencies: []*graph.Dependency{graph.NewDependency(graph.TypeDynamicImport, request)},
		})
	}
	return result, nil
}

// MapCache is a pipeline.Cache backed by a map.
type MapCache struct {
	mu      sync.Mutex
	results map[string]*pipeline.BuildResult
}

// Get implements pipeline.Cache.
func (c *MapCache) Get(key string) (*pipeline.BuildResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[key]
	return r, ok
}

// Set implements pipeline.Cache.
func (c *MapCache) Set(key string, r *pipeline.BuildResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results == nil {
		c.results = make(map[string]*pipeline.BuildResult)
	}
	c.results[key] = r
}

// Len returns the number of cached results.
func (c *MapCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}
