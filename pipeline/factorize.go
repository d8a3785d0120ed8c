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
	"slices"
	"strings"

	"bennypowers.dev/modgraph/artifact"
	"bennypowers.dev/modgraph/diagnostic"
	"bennypowers.dev/modgraph/graph"
)

// factorizeTask resolves one group of dependencies that share a request and
// resolution settings.
type factorizeTask struct {
	factory ModuleFactory
	origin  graph.ModuleIdentifier
	data    *FactorizeData
}

func (t *factorizeTask) Name() string { return "factorize" }

func (t *factorizeTask) RunBackground(ctx context.Context) (tasks, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := t.factory.Create(ctx, t.data)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil, err
	}

	ids := make([]graph.DependencyID, len(t.data.Dependencies))
	for i, d := range t.data.Dependencies {
		ids[i] = d.ID
	}
	return tasks{&factorizeResultTask{
		origin:       t.origin,
		dependencies: ids,
		module:       m,
		err:          err,
		info: &artifact.FactorizeInfo{
			FileDependencies:    t.data.FileDependencies,
			ContextDependencies: t.data.ContextDependencies,
			MissingDependencies: t.data.MissingDependencies,
		},
	}}, nil
}

// factorizeResultTask records the outcome of a factorize task.
type factorizeResultTask struct {
	origin       graph.ModuleIdentifier
	dependencies []graph.DependencyID
	module       *graph.Module
	err          error
	info         *artifact.FactorizeInfo
}

func (t *factorizeResultTask) Name() string { return "factorize_result" }

func (t *factorizeResultTask) RunMain(_ context.Context, c *Context) (tasks, error) {
	art := c.Artifact
	mg := art.ModuleGraph

	// Dependencies deleted since the task was queued have nothing to record.
	deps := slices.DeleteFunc(slices.Clone(t.dependencies), func(id graph.DependencyID) bool {
		_, ok := mg.Dependency(id)
		return !ok
	})
	if len(deps) == 0 {
		c.finishDependencies(t.dependencies)
		return nil, nil
	}

	if t.err != nil {
		t.info.Diagnostics = []diagnostic.Diagnostic{diagnostic.NewError(diagnostic.ModuleNotFound, t.err)}
	}
	for _, dep := range deps {
		art.MarkAffected(dep)
		art.SetFactorizeInfo(dep, t.info)
	}

	if t.err != nil {
		c.finishDependencies(t.dependencies)
		for _, dep := range deps {
			art.MarkDependencyFailed(dep)
		}
		if c.Options.Bail {
			return nil, fmt.Errorf("%w: %w", ErrBail, t.err)
		}
		c.logger().Debug("failed to resolve %q: %v", mg.MustDependency(deps[0]).Request, t.err)
		return nil, nil
	}
	for _, dep := range deps {
		art.ClearDependencyFailed(dep)
	}

	if t.module == nil {
		c.finishDependencies(t.dependencies)
		for _, dep := range deps {
			mg.RemoveConnection(dep)
		}
		return nil, nil
	}

	id := t.module.Identifier
	issuer := graph.IssuerNone()
	if t.origin != "" {
		issuer = graph.IssuerModule(t.origin)
	}

	if mgm, ok := mg.ModuleGraphModule(id); ok {
		mgm.SetIssuerIfUnset(issuer)
		for _, dep := range deps {
			mg.SetResolvedModule(t.origin, dep, id)
		}
		c.finishDependencies(t.dependencies)
		return nil, nil
	}

	mgm := graph.NewModuleGraphModule(id)
	mgm.SetIssuerIfUnset(issuer)
	mg.AddModuleGraphModule(mgm)
	c.startModule(id)
	// The dependencies stay pending until the add task connects them.
	return tasks{&addTask{
		origin:       t.origin,
		module:       t.module,
		dependencies: deps,
	}}, nil
}

// factorizeGroup collects dependencies that resolve identically.
type factorizeGroup struct {
	key  string
	deps []*graph.Dependency
}

// newFactorizeTasks groups deps issued by origin into factorize tasks.
// Dependencies without their own context or layer inherit the issuer's.
func newFactorizeTasks(c *Context, origin graph.ModuleIdentifier, deps []*graph.Dependency) tasks {
	parentContext, parentLayer := c.Options.Context, ""
	if origin != "" {
		if m, ok := c.Artifact.ModuleGraph.Module(origin); ok {
			parentContext, parentLayer = m.Context, m.Layer
		}
	}

	var groups []*factorizeGroup
	byKey := make(map[string]*factorizeGroup)
	for _, d := range deps {
		if d.Weak {
			continue
		}
		ctxDir, layer := inherit(d, parentContext, parentLayer)
		key := strings.Join([]string{
			string(d.Category()), d.Request, layer, ctxDir, d.ResolveOptions.Key(),
		}, "\x00")
		g, ok := byKey[key]
		if !ok {
			g = &factorizeGroup{key: key}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.deps = append(g.deps, d)
	}

	out := make(tasks, 0, len(groups))
	for _, g := range groups {
		c.startDependencies(g.deps)
		first := g.deps[0]
		ctxDir, layer := inherit(first, parentContext, parentLayer)
		out = append(out, &factorizeTask{
			factory: c.Factory,
			origin:  origin,
			data: &FactorizeData{
				Dependencies:   g.deps,
				Context:        ctxDir,
				Layer:          layer,
				Issuer:         origin,
				ResolveOptions: first.ResolveOptions,
			},
		})
	}
	return out
}

func inherit(d *graph.Dependency, parentContext, parentLayer string) (string, string) {
	ctxDir, layer := d.Context, d.Layer
	if ctxDir == "" {
		ctxDir = parentContext
	}
	if layer == "" {
		layer = parentLayer
	}
	return ctxDir, layer
}
