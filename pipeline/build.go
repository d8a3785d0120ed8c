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

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"bennypowers.dev/modgraph/diagnostic"
	"bennypowers.dev/modgraph/graph"
)

// addTask inserts a freshly factorized module into the graph.
type addTask struct {
	origin       graph.ModuleIdentifier
	module       *graph.Module
	dependencies []graph.DependencyID
}

func (t *addTask) Name() string { return "add" }

func (t *addTask) RunMain(_ context.Context, c *Context) (tasks, error) {
	art := c.Artifact
	mg := art.ModuleGraph
	id := t.module.Identifier

	mg.AddModule(t.module)
	for _, dep := range t.dependencies {
		mg.SetResolvedModule(t.origin, dep, id)
	}
	c.finishDependencies(t.dependencies)
	art.MarkBuilt(id)

	if c.Cache != nil && c.Options.UnsafeCache != nil && !art.WasRevoked(id) && c.Options.UnsafeCache(t.module) {
		if cached, ok := c.Cache.Get(string(id)); ok {
			c.logger().Debug("reusing cached build of %s", id)
			return tasks{&buildResultTask{
				module:    id,
				result:    cached.Clone(),
				fromCache: true,
			}}, nil
		}
	}

	return tasks{&buildTask{
		builder: c.Builder,
		request: BuildRequest{
			Identifier: id,
			Type:       t.module.Type,
			Resource:   t.module.Resource,
			Context:    t.module.Context,
			Layer:      t.module.Layer,
		},
	}}, nil
}

// buildTask loads one module.
type buildTask struct {
	builder ModuleBuilder
	request BuildRequest
}

func (t *buildTask) Name() string { return "build" }

func (t *buildTask) RunBackground(ctx context.Context) (tasks, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := t.builder.Build(ctx, t.request)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if result == nil {
			result = &BuildResult{}
		}
		result.Diagnostics = append(result.Diagnostics,
			diagnostic.NewError(diagnostic.ModuleBuildError, fmt.Errorf("build %s: %w", t.request.Resource, err)))
	}
	if result == nil {
		result = &BuildResult{}
	}
	return tasks{&buildResultTask{module: t.request.Identifier, result: result}}, nil
}

// buildResultTask attaches a build result to its module.
type buildResultTask struct {
	module    graph.ModuleIdentifier
	result    *BuildResult
	fromCache bool
}

func (t *buildResultTask) Name() string { return "build_result" }

func (t *buildResultTask) RunMain(_ context.Context, c *Context) (tasks, error) {
	art := c.Artifact
	mg := art.ModuleGraph
	m := mg.MustModule(t.module)
	r := t.result

	m.BuildInfo = r.BuildInfo
	m.Diagnostics = r.Diagnostics
	art.ApplyBuildInfo(m.Identifier, r.BuildInfo)

	m.Dependencies = m.Dependencies[:0]
	for i, d := range r.Dependencies {
		mg.AddDependency(d, graph.DependencyParent{Module: m.Identifier, Index: i})
		m.Dependencies = append(m.Dependencies, d.ID)
	}
	m.Blocks = m.Blocks[:0]
	for i, b := range r.Blocks {
		block := &graph.AsyncBlock{
			ID:           graph.AsyncBlockID(fmt.Sprintf("%s|%d|%s", m.Identifier, i, b.Request)),
			Parent:       m.Identifier,
			Request:      b.Request,
			GroupOptions: b.GroupOptions,
		}
		for j, d := range b.Dependencies {
			mg.AddDependency(d, graph.DependencyParent{Module: m.Identifier, Block: block.ID, Index: j})
			block.Dependencies = append(block.Dependencies, d.ID)
		}
		mg.AddBlock(block)
		m.Blocks = append(m.Blocks, block.ID)
	}

	exports := r.Exports
	if exports == nil {
		exports = &graph.ExportsInfo{Unknown: true}
	}
	mg.MustModuleGraphModule(m.Identifier).ExportsInfo = exports

	failed := r.Failed()
	art.SetModuleFailed(m.Identifier, failed)
	if failed {
		c.Plugins.FailedModule(m)
	} else {
		c.Plugins.SucceedModule(m)
		if c.Cache != nil && r.BuildInfo.Cacheable && !t.fromCache {
			c.Cache.Set(string(m.Identifier), r)
		}
	}

	return tasks{&processDependenciesTask{module: m.Identifier}}, nil
}

// processDependenciesTask queues factorization of a built module's
// dependencies.
type processDependenciesTask struct {
	module graph.ModuleIdentifier
}

func (t *processDependenciesTask) Name() string { return "process_dependencies" }

func (t *processDependenciesTask) RunMain(_ context.Context, c *Context) (tasks, error) {
	mg := c.Artifact.ModuleGraph
	m := mg.MustModule(t.module)
	c.finishModule(t.module)

	var deps []*graph.Dependency
	for _, id := range m.Dependencies {
		deps = append(deps, mg.MustDependency(id))
	}
	if !c.Options.LazyDynamicImports {
		for _, bid := range m.Blocks {
			for _, id := range mg.MustBlock(bid).Dependencies {
				deps = append(deps, mg.MustDependency(id))
			}
		}
	}
	return newFactorizeTasks(c, m.Identifier, deps), nil
}
