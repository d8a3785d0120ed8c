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

// Package compiler drives build passes over a long-lived module graph.
//
// A Compiler owns one artifact and the collaborators that fill it: a cached
// resolver, the module factory, the loader and an optional build cache.
// Build runs the first pass from the configured entries. Rebuild takes the
// files that changed since the previous pass and repairs only what they
// touched.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"bennypowers.dev/modgraph/artifact"
	"bennypowers.dev/modgraph/cache"
	"bennypowers.dev/modgraph/cutout"
	"bennypowers.dev/modgraph/diagnostic"
	"bennypowers.dev/modgraph/entry"
	"bennypowers.dev/modgraph/factory"
	"bennypowers.dev/modgraph/fs"
	"bennypowers.dev/modgraph/graph"
	"bennypowers.dev/modgraph/internal/logging"
	"bennypowers.dev/modgraph/loader"
	"bennypowers.dev/modgraph/metrics"
	"bennypowers.dev/modgraph/pipeline"
	"bennypowers.dev/modgraph/plugin"
	"bennypowers.dev/modgraph/resolve"
)

// ErrNoEntries is returned by Build when no entry is configured.
var ErrNoEntries = errors.New("no entries configured")

// Options configure a Compiler.
type Options struct {
	// Context is the directory entries and relative requests resolve from.
	Context string
	Entries []entry.Entry

	Extensions []string
	Alias      map[string]string
	Conditions []string
	MainFields []string
	// Externals are requests left to the runtime.
	Externals []string
	// Workspaces resolves packages listed in the workspaces field of
	// Context/package.json to their directories.
	Workspaces bool

	Bail               bool
	LazyDynamicImports bool
	Parallelism        int

	// CacheSize bounds the build cache. Zero uses the default size and a
	// negative size disables the cache.
	CacheSize int
	// UnsafeCache replays cached builds of modules under node_modules
	// instead of rebuilding them when they are added again.
	UnsafeCache bool
}

// EntryModule is an entry and the module it resolved to.
type EntryModule struct {
	Name    string
	Request string
	Layer   string
	// Module is empty when the entry failed to resolve.
	Module graph.ModuleIdentifier
}

// Result is the outcome of one pass.
type Result struct {
	Artifact             *artifact.MakeArtifact
	Entries              []EntryModule
	Diagnostics          []diagnostic.Diagnostic
	HasModuleGraphChange bool
	Stats                metrics.Pass
}

// Failed reports whether the pass produced an error diagnostic.
func (r *Result) Failed() bool {
	return diagnostic.HasErrors(r.Diagnostics)
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger shared by the compiler and its collaborators.
func WithLogger(l logging.Logger) Option {
	return func(c *Compiler) { c.logger = logging.OrNop(l) }
}

// WithPlugins applies plugins to the compiler's hook driver.
func WithPlugins(plugins ...plugin.Plugin) Option {
	return func(c *Compiler) { c.plugins = plugin.NewDriver(plugins...) }
}

// WithMetrics records task timings and pass statistics on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Compiler) { c.recorder = r }
}

// WithRecover continues from an artifact produced by an earlier compiler,
// typically one restored from a previous session. It only applies while
// the compiler's own artifact is still uninitialized.
func WithRecover(art *artifact.MakeArtifact) Option {
	return func(c *Compiler) {
		if art != nil && c.artifact.State == artifact.Uninitialized {
			c.artifact = art
		}
	}
}

// entryKey identifies an entry dependency by what it resolves.
type entryKey struct {
	request string
	layer   string
}

// Compiler runs passes one at a time. It is safe to call Build and Rebuild
// from several goroutines; passes are serialized.
type Compiler struct {
	mu sync.Mutex

	fs       fs.FileSystem
	opts     Options
	logger   logging.Logger
	plugins  *plugin.Driver
	recorder *metrics.Recorder

	resolver *resolve.Factory
	factory  *factory.NormalModuleFactory
	builder  *loader.Builder
	cache    *cache.BuildCache

	artifact *artifact.MakeArtifact
	cutout   *cutout.Cutout
	entries  map[entryKey]graph.DependencyID
	names    map[graph.DependencyID]string
}

// New creates a Compiler reading sources from fsys.
func New(fsys fs.FileSystem, opts Options, options ...Option) (*Compiler, error) {
	if opts.Context == "" {
		return nil, errors.New("compiler: context directory is required")
	}
	c := &Compiler{
		fs:       fsys,
		opts:     opts,
		logger:   logging.Nop(),
		artifact: artifact.New(),
		cutout:   cutout.New(),
		entries:  make(map[entryKey]graph.DependencyID),
		names:    make(map[graph.DependencyID]string),
	}
	for _, o := range options {
		o(c)
	}

	b, err := loader.New(fsys, loader.DefaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("compiler: %w", err)
	}
	c.builder = b.WithLogger(c.logger)

	if opts.CacheSize >= 0 {
		bc, err := cache.New(opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("compiler: %w", err)
		}
		c.cache = bc
	}

	c.wireResolver()

	// A recovered artifact already holds entry dependencies.
	mg := c.artifact.ModuleGraph
	for _, id := range c.artifact.EntryDependencies() {
		dep := mg.MustDependency(id)
		c.entries[entryKey{request: dep.Request, layer: dep.Layer}] = id
	}
	return c, nil
}

// wireResolver builds a fresh resolver and the factory on top of it.
func (c *Compiler) wireResolver() {
	r := resolve.New(c.fs, c.logger)
	if len(c.opts.Extensions) > 0 {
		r = r.WithExtensions(c.opts.Extensions)
	}
	if len(c.opts.Alias) > 0 {
		r = r.WithAlias(c.opts.Alias)
	}
	if len(c.opts.Conditions) > 0 {
		r = r.WithConditions(c.opts.Conditions)
	}
	if len(c.opts.MainFields) > 0 {
		r = r.WithMainFields(c.opts.MainFields)
	}
	if c.opts.Workspaces {
		packages, err := resolve.DiscoverWorkspacePackages(c.fs, c.opts.Context)
		if err != nil {
			c.logger.Debug("no workspaces in %s: %v", c.opts.Context, err)
		} else {
			c.logger.Debug("discovered %d workspace packages", len(packages))
			r = r.WithWorkspaces(packages)
		}
	}
	c.resolver = resolve.NewFactory(r)
	c.factory = factory.New(c.resolver).
		WithPlugins(c.plugins).
		WithExternals(c.opts.Externals).
		WithLogger(c.logger)
}

// Artifact returns the compiler's artifact. It must not be modified while
// a pass runs.
func (c *Compiler) Artifact() *artifact.MakeArtifact {
	return c.artifact
}

// Build runs a pass that adds every configured entry not yet in the graph.
// On a fresh compiler this is the cold build; afterwards it only retries
// failures and picks up entries that appeared, for example new files
// matching an entry glob.
func (c *Compiler) Build(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.opts.Entries) == 0 && len(c.entries) == 0 {
		return nil, ErrNoEntries
	}
	c.artifact.ResetTemporaryData()
	params, entriesChanged, err := c.syncEntries()
	if err != nil {
		return nil, err
	}
	return c.pass(ctx, params, entriesChanged)
}

// Rebuild runs an incremental pass for files modified or removed since the
// previous pass. Paths are absolute. A compiler that has not built yet
// runs a cold build instead.
func (c *Compiler) Rebuild(ctx context.Context, modified, removed []string) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.artifact.ResetTemporaryData()
	if c.artifact.State == artifact.Uninitialized {
		params, changed, err := c.syncEntries()
		if err != nil {
			return nil, err
		}
		return c.pass(ctx, params, changed)
	}

	if c.cache != nil {
		if n := c.cache.Invalidate(slices.Concat(modified, removed)...); n > 0 {
			c.logger.Debug("dropped %d cached builds of changed files", n)
		}
	}

	params := cutout.Params{ModifiedFiles: modified, RemovedFiles: removed}
	entriesChanged := false
	if c.needsReresolve(modified, removed) {
		c.logger.Debug("files added, removed or manifests changed; dropping resolver caches")
		if c.opts.Workspaces {
			c.wireResolver()
		} else {
			c.resolver.Invalidate()
		}
		ep, changed, err := c.syncEntries()
		if err != nil {
			return nil, err
		}
		params.EntryDependencies = ep.EntryDependencies
		entriesChanged = changed
	}
	return c.pass(ctx, params, entriesChanged)
}

// needsReresolve reports whether a change can alter resolution results:
// a manifest changed, or a file appeared or disappeared.
func (c *Compiler) needsReresolve(modified, removed []string) bool {
	if len(removed) > 0 {
		return true
	}
	for _, p := range modified {
		if filepath.Base(p) == "package.json" || isHTML(p) {
			return true
		}
		if !c.artifact.FileDependencies.Contains(p) {
			return true
		}
	}
	return false
}

// syncEntries expands the configured entries and reconciles them with the
// entry dependencies in the graph. New entries are returned as params;
// entries that disappeared are revoked.
func (c *Compiler) syncEntries() (cutout.Params, bool, error) {
	expanded, err := entry.Expand(c.fs, c.opts.Context, c.opts.Entries)
	if err != nil && !(errors.Is(err, entry.ErrNoMatch) && c.artifact.State == artifact.Initialized) {
		return cutout.Params{}, false, fmt.Errorf("compiler: %w", err)
	}

	var params cutout.Params
	changed := false
	wanted := make(map[entryKey]bool, len(expanded))
	for _, e := range expanded {
		key := entryKey{request: e.Request, layer: e.Layer}
		wanted[key] = true
		if id, ok := c.entries[key]; ok {
			c.names[id] = e.Name
			continue
		}
		dep := graph.NewEntryDependency(e.Request, e.Layer)
		c.artifact.AddEntryDependency(dep)
		c.entries[key] = dep.ID
		c.names[dep.ID] = e.Name
		params.EntryDependencies = append(params.EntryDependencies, dep.ID)
		changed = true
	}

	if len(c.opts.Entries) > 0 {
		for key, id := range c.entries {
			if wanted[key] {
				continue
			}
			c.logger.Debug("entry %q is gone", key.request)
			c.artifact.RevokeDependency(id, true)
			delete(c.entries, key)
			delete(c.names, id)
			changed = true
		}
	}
	return params, changed, nil
}

// pass cuts, repairs and fixes the artifact. Callers reset the artifact's
// per-pass data before touching it.
func (c *Compiler) pass(ctx context.Context, params cutout.Params, entriesChanged bool) (*Result, error) {
	start := time.Now()
	art := c.artifact
	cold := art.State == artifact.Uninitialized

	seeds := c.cutout.CutArtifact(art, params)

	pc := &pipeline.Context{
		Artifact: art,
		Factory:  c.factory,
		Builder:  c.builder,
		Plugins:  c.plugins,
		Logger:   c.logger,
		Options: pipeline.Options{
			Bail:               c.opts.Bail,
			Context:            c.opts.Context,
			LazyDynamicImports: c.opts.LazyDynamicImports,
			Parallelism:        c.opts.Parallelism,
		},
		BeforeRun: metrics.TimeTasks[*pipeline.Context](c.recorder),
	}
	if c.cache != nil {
		pc.Cache = c.cache
		if c.opts.UnsafeCache {
			pc.Options.UnsafeCache = inNodeModules
		}
	}

	if _, err := pipeline.Repair(ctx, pc, seeds); err != nil {
		return nil, err
	}
	c.cutout.FixArtifact(art)
	if entriesChanged {
		art.HasModuleGraphChange = true
	}

	mg := art.ModuleGraph
	if art.HasModuleGraphChange || len(art.BuiltModules()) > 0 || len(art.RevokedModules()) > 0 {
		mg.AssignTraversalIndices(art.EntryDependencies())
	}
	if err := c.plugins.FinishModules(ctx, mg); err != nil {
		return nil, fmt.Errorf("finish modules: %w", err)
	}

	diags := art.Diagnostics()
	res := &Result{
		Artifact:             art,
		Entries:              c.entryModules(),
		Diagnostics:          diags,
		HasModuleGraphChange: art.HasModuleGraphChange,
	}
	rs := c.resolver.Stats()
	res.Stats = metrics.Pass{
		Cold:               cold,
		Duration:           time.Since(start),
		Modules:            mg.ModuleCount(),
		Dependencies:       mg.DependencyCount(),
		Built:              len(art.BuiltModules()),
		Revoked:            len(art.RevokedModules()),
		Changed:            art.HasModuleGraphChange,
		ResolveCacheHits:   rs.Hits,
		ResolveCacheMisses: rs.Misses,
	}
	for _, d := range diags {
		if d.IsError() {
			res.Stats.Errors++
		} else {
			res.Stats.Warnings++
		}
	}
	if c.recorder != nil {
		c.recorder.ObservePass(res.Stats)
	}

	c.logger.Debug("pass done in %s: %d modules, %d built, %d revoked, changed=%t",
		res.Stats.Duration, res.Stats.Modules, res.Stats.Built, res.Stats.Revoked, res.HasModuleGraphChange)
	return res, nil
}

// entryModules lists the entries sorted by name.
func (c *Compiler) entryModules() []EntryModule {
	mg := c.artifact.ModuleGraph
	out := make([]EntryModule, 0, len(c.entries))
	for key, id := range c.entries {
		target, _ := mg.ResolvedModule(id)
		out = append(out, EntryModule{
			Name:    c.names[id],
			Request: key.request,
			Layer:   key.layer,
			Module:  target,
		})
	}
	slices.SortFunc(out, func(a, b EntryModule) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func inNodeModules(m *graph.Module) bool {
	return strings.Contains(filepath.ToSlash(m.Resource), "/node_modules/")
}

func isHTML(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	return ext == ".html" || ext == ".htm"
}
