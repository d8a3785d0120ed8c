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

// Package pipeline turns dependencies into modules.
//
// Every dependency expands through the same chain of tasks:
//
//	factorize (background)   resolve the dependency to a candidate module
//	factorize result (main)  record the outcome, dedup by identifier
//	add (main)               insert the module, or replay it from cache
//	build (background)       load the module and discover its dependencies
//	build result (main)      attach dependencies and blocks to the graph
//	process deps (main)      fan the new dependencies out as factorize tasks
//
// Main tasks are the only code that touches the artifact. Background tasks
// capture what they need when they are created and talk only to the
// collaborators, which must be safe for concurrent use.
package pipeline

import (
	"context"
	"errors"
	"maps"
	"slices"

	"bennypowers.dev/modgraph/artifact"
	"bennypowers.dev/modgraph/diagnostic"
	"bennypowers.dev/modgraph/graph"
	"bennypowers.dev/modgraph/internal/logging"
	"bennypowers.dev/modgraph/plugin"
	"bennypowers.dev/modgraph/task"
)

// ErrBail is returned when a dependency fails to resolve and Options.Bail
// is set.
var ErrBail = errors.New("build aborted on first error")

var errInterrupted = errors.New("build interrupted by an aborted pass")

// FactorizeData is the input of one module factory call. The factory
// appends every path it touched to the dependency slices, also on failure,
// so that the failure can be retried when one of them changes.
type FactorizeData struct {
	// Dependencies share the same request and resolution settings.
	Dependencies []*graph.Dependency
	Context      string
	Layer        string
	Issuer       graph.ModuleIdentifier

	ResolveOptions *graph.ResolveOptions

	FileDependencies    []string
	ContextDependencies []string
	MissingDependencies []string
}

// Request returns the request shared by every dependency in the group.
func (d *FactorizeData) Request() string {
	return d.Dependencies[0].Request
}

// Category returns the resolution category shared by the group.
func (d *FactorizeData) Category() graph.Category {
	return d.Dependencies[0].Category()
}

// ModuleFactory resolves dependencies to candidate modules. A nil module
// with a nil error means the request is intentionally ignored.
type ModuleFactory interface {
	Create(ctx context.Context, data *FactorizeData) (*graph.Module, error)
}

// BuildRequest identifies the module to build.
type BuildRequest struct {
	Identifier graph.ModuleIdentifier
	Type       graph.ModuleType
	Resource   string
	Context    string
	Layer      string
}

// BlockResult is an async block discovered by a build.
type BlockResult struct {
	Request      string
	GroupOptions graph.GroupOptions
	Dependencies []*graph.Dependency
}

// BuildResult is what a module build produced.
type BuildResult struct {
	Dependencies []*graph.Dependency
	Blocks       []BlockResult
	BuildInfo    graph.BuildInfo
	// Exports is nil when the exports could not be determined.
	Exports     *graph.ExportsInfo
	Diagnostics []diagnostic.Diagnostic
}

// Failed reports whether the build produced an error diagnostic.
func (r *BuildResult) Failed() bool {
	return diagnostic.HasErrors(r.Diagnostics)
}

// Clone copies the result. Dependencies receive fresh identifiers so a
// replayed result never collides with the dependencies of its first build.
func (r *BuildResult) Clone() *BuildResult {
	c := &BuildResult{
		BuildInfo:   r.BuildInfo.Clone(),
		Diagnostics: slices.Clone(r.Diagnostics),
	}
	for _, d := range r.Dependencies {
		c.Dependencies = append(c.Dependencies, d.Clone())
	}
	for _, b := range r.Blocks {
		nb := BlockResult{Request: b.Request, GroupOptions: b.GroupOptions}
		for _, d := range b.Dependencies {
			nb.Dependencies = append(nb.Dependencies, d.Clone())
		}
		c.Blocks = append(c.Blocks, nb)
	}
	if r.Exports != nil {
		c.Exports = &graph.ExportsInfo{
			Provided: slices.Clone(r.Exports.Provided),
			Unknown:  r.Exports.Unknown,
		}
	}
	return c
}

// ModuleBuilder loads a module and reports its dependencies. A returned
// error is recorded as a build failure of the module; use diagnostics in
// the result for warnings and recoverable errors.
type ModuleBuilder interface {
	Build(ctx context.Context, req BuildRequest) (*BuildResult, error)
}

// Cache stores build results by module identifier.
type Cache interface {
	Get(key string) (*BuildResult, bool)
	Set(key string, result *BuildResult)
}

// Options control a pass.
type Options struct {
	// Bail aborts the pass on the first resolution failure.
	Bail bool
	// Context is the directory entry requests resolve from.
	Context string
	// UnsafeCache selects modules whose cached build result may be reused
	// without rebuilding. Modules revoked during the pass always rebuild.
	UnsafeCache func(m *graph.Module) bool
	// LazyDynamicImports leaves dependencies inside async blocks
	// unresolved.
	LazyDynamicImports bool
	// Parallelism bounds concurrent background tasks; <= 0 is unbounded.
	Parallelism int
}

// Context is the shared state main tasks run against.
type Context struct {
	Artifact *artifact.MakeArtifact
	Factory  ModuleFactory
	Builder  ModuleBuilder
	// Cache and Plugins are optional.
	Cache   Cache
	Plugins *plugin.Driver
	Options Options
	Logger  logging.Logger

	// BeforeRun wraps every main task, for example to time it.
	BeforeRun task.BeforeRun[*Context]

	pending *inflight
}

// inflight is the work a pass started but has not finished: modules between
// factorization and the processing of their dependencies, and dependencies
// queued for factorization but not yet connected.
type inflight struct {
	modules map[graph.ModuleIdentifier]struct{}
	deps    map[graph.DependencyID]struct{}
}

func newInflight() *inflight {
	return &inflight{
		modules: make(map[graph.ModuleIdentifier]struct{}),
		deps:    make(map[graph.DependencyID]struct{}),
	}
}

func (c *Context) startModule(id graph.ModuleIdentifier) {
	if c.pending != nil {
		c.pending.modules[id] = struct{}{}
	}
}

func (c *Context) finishModule(id graph.ModuleIdentifier) {
	if c.pending != nil {
		delete(c.pending.modules, id)
	}
}

func (c *Context) startDependencies(deps []*graph.Dependency) {
	if c.pending == nil {
		return
	}
	for _, d := range deps {
		c.pending.deps[d.ID] = struct{}{}
	}
}

func (c *Context) finishDependencies(ids []graph.DependencyID) {
	if c.pending == nil {
		return
	}
	for _, id := range ids {
		delete(c.pending.deps, id)
	}
}

// abandon marks everything an aborted pass left unfinished as failed, so
// the next cut retries it. Modules that were factorized but never added
// only have metadata, which is dropped together with its connections.
func (c *Context) abandon() {
	if c.pending == nil {
		return
	}
	art := c.Artifact
	mg := art.ModuleGraph
	for _, id := range slices.Sorted(maps.Keys(c.pending.modules)) {
		m, ok := mg.Module(id)
		if !ok {
			if mgm, ok := mg.ModuleGraphModule(id); ok {
				for _, dep := range mgm.IncomingConnections() {
					art.MarkDependencyFailed(dep)
				}
				mg.RemoveModule(id)
			}
			continue
		}
		m.Diagnostics = append(m.Diagnostics, diagnostic.NewError(diagnostic.ModuleBuildError, errInterrupted))
		art.SetModuleFailed(id, true)
	}
	for _, dep := range slices.Sorted(maps.Keys(c.pending.deps)) {
		if _, ok := mg.Dependency(dep); ok && !art.IsFailedDependency(dep) {
			art.MarkDependencyFailed(dep)
		}
	}
	c.pending = nil
}

type tasks = []task.Task[*Context]

func (c *Context) logger() logging.Logger {
	return logging.OrNop(c.Logger)
}
