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

// Package cutout computes what an incremental pass must rebuild and whether
// the pass changed the shape of the module graph.
//
// CutArtifact runs before the pass. It maps changed files to the modules and
// dependencies that touched them, snapshots the outgoing edges of every
// module it is about to rebuild, revokes them, and returns the dependencies
// to factorize again. FixArtifact runs after the pass. It repairs issuers,
// drops modules that became unreachable, and compares the snapshots against
// the rebuilt graph. Only rebuilt modules are compared, so a pass that edits
// one file costs one snapshot, not a graph walk.
package cutout

import (
	"maps"
	"slices"
	"strings"

	"bennypowers.dev/modgraph/artifact"
	"bennypowers.dev/modgraph/graph"
)

// Params describe what changed since the previous pass.
type Params struct {
	// EntryDependencies are entry dependencies to factorize, typically
	// entries added since the previous pass.
	EntryDependencies []graph.DependencyID
	ModifiedFiles     []string
	RemovedFiles      []string
	ForceBuildModules []graph.ModuleIdentifier
	ForceBuildDeps    []artifact.ForceBuildDep
}

type blockSnapshot struct {
	id      graph.AsyncBlockID
	options graph.GroupOptions
}

// moduleSnapshot is the part of a module that defines graph shape: which
// modules it imports, with which names, and which async blocks it opens.
type moduleSnapshot struct {
	children map[graph.ModuleIdentifier][]string
	blocks   []blockSnapshot
}

func (s moduleSnapshot) equal(o moduleSnapshot) bool {
	return maps.EqualFunc(s.children, o.children, func(a, b []string) bool { return slices.Equal(a, b) }) &&
		slices.Equal(s.blocks, o.blocks)
}

// Cutout carries snapshots from CutArtifact to FixArtifact. A Cutout is
// used for one pass at a time.
type Cutout struct {
	snapshots map[graph.ModuleIdentifier]moduleSnapshot
	// targets holds the connection target of every dependency seed before
	// the pass, or "" when it had none.
	targets map[graph.DependencyID]graph.ModuleIdentifier
	cold    bool
}

// New creates an empty cutout.
func New() *Cutout {
	return &Cutout{
		snapshots: make(map[graph.ModuleIdentifier]moduleSnapshot),
		targets:   make(map[graph.DependencyID]graph.ModuleIdentifier),
	}
}

// CutArtifact revokes everything affected by p and returns the dependencies
// to factorize. Modules and dependencies that failed during the previous
// pass are always retried.
func (c *Cutout) CutArtifact(art *artifact.MakeArtifact, p Params) []artifact.ForceBuildDep {
	mg := art.ModuleGraph
	clear(c.snapshots)
	clear(c.targets)

	modules := make(map[graph.ModuleIdentifier]struct{})
	var deps []artifact.ForceBuildDep
	addOwner := func(o artifact.Owner) {
		if id, ok := o.Module(); ok {
			modules[id] = struct{}{}
			return
		}
		if dep, ok := o.Dependency(); ok {
			parent, _ := mg.DependencyParent(dep)
			deps = append(deps, artifact.ForceBuildDep{Dependency: dep, Parent: parent.Module})
		}
	}

	changed := slices.Concat(p.ModifiedFiles, p.RemovedFiles)
	for _, path := range changed {
		for _, counter := range []*artifact.FileCounter{
			art.FileDependencies, art.MissingDependencies, art.BuildDependencies,
		} {
			for _, o := range counter.Owners(path) {
				addOwner(o)
			}
		}
	}
	for _, dir := range art.ContextDependencies.Files() {
		for _, path := range changed {
			if path == dir || strings.HasPrefix(path, strings.TrimSuffix(dir, "/")+"/") {
				for _, o := range art.ContextDependencies.Owners(dir) {
					addOwner(o)
				}
				break
			}
		}
	}

	for _, id := range p.ForceBuildModules {
		modules[id] = struct{}{}
	}
	for _, id := range art.FailedModules() {
		modules[id] = struct{}{}
	}
	for _, dep := range art.FailedDependencies() {
		parent, _ := mg.DependencyParent(dep)
		deps = append(deps, artifact.ForceBuildDep{Dependency: dep, Parent: parent.Module})
	}
	deps = append(deps, p.ForceBuildDeps...)
	for _, dep := range p.EntryDependencies {
		deps = append(deps, artifact.ForceBuildDep{Dependency: dep})
	}

	c.cold = art.State == artifact.Uninitialized ||
		(len(modules) == 0 && len(changed) == 0 && len(p.EntryDependencies) > 0)

	ids := slices.Sorted(maps.Keys(modules))
	for _, id := range ids {
		if mg.HasModule(id) {
			c.snapshots[id] = snapshot(mg, id)
		}
	}
	for _, d := range deps {
		if _, seen := c.targets[d.Dependency]; seen {
			continue
		}
		target, _ := mg.ResolvedModule(d.Dependency)
		c.targets[d.Dependency] = target
	}

	var seeds []artifact.ForceBuildDep
	for _, id := range ids {
		if mg.HasModule(id) {
			seeds = append(seeds, art.RevokeModule(id)...)
		}
	}
	for _, d := range deps {
		if _, ok := mg.Dependency(d.Dependency); !ok {
			continue
		}
		seeds = append(seeds, art.RevokeDependency(d.Dependency, false))
	}
	return seeds
}

// FixArtifact finishes a pass: it repairs issuers, removes modules no longer
// reachable from an entry and sets art.HasModuleGraphChange.
func (c *Cutout) FixArtifact(art *artifact.MakeArtifact) {
	mg := art.ModuleGraph
	changed := c.cold

	if len(art.IssuerUpdateModules()) > 0 {
		parents := reachable(art)
		for {
			pending := art.IssuerUpdateModules()
			if len(pending) == 0 {
				break
			}
			for _, id := range pending {
				art.ClearIssuerUpdate(id)
				mgm, ok := mg.ModuleGraphModule(id)
				if !ok {
					continue
				}
				if issuer, ok := parents[id]; ok {
					mgm.SetIssuer(issuer)
					continue
				}
				// Unreachable. Revoking may queue its children for an issuer
				// update, which the next round handles.
				if mg.HasModule(id) {
					art.RevokeModule(id)
					changed = true
				}
			}
		}
	}

	for id, before := range c.snapshots {
		if changed {
			break
		}
		if !mg.HasModule(id) || !before.equal(snapshot(mg, id)) {
			changed = true
		}
	}
	for dep, before := range c.targets {
		if changed {
			break
		}
		if _, ok := mg.Dependency(dep); !ok {
			continue
		}
		after, _ := mg.ResolvedModule(dep)
		if after != before {
			changed = true
		}
	}

	art.HasModuleGraphChange = changed
}

// reachable walks the graph breadth-first from the entries and returns, for
// every reachable module, the issuer it was first reached through.
func reachable(art *artifact.MakeArtifact) map[graph.ModuleIdentifier]graph.Issuer {
	mg := art.ModuleGraph
	issuers := make(map[graph.ModuleIdentifier]graph.Issuer)
	var queue []graph.ModuleIdentifier
	for _, dep := range art.EntryDependencies() {
		target, ok := mg.ResolvedModule(dep)
		if !ok {
			continue
		}
		if _, seen := issuers[target]; !seen {
			issuers[target] = graph.IssuerNone()
			queue = append(queue, target)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		m, ok := mg.Module(id)
		if !ok {
			continue
		}
		for _, dep := range mg.AllDependencies(m) {
			target, ok := mg.ResolvedModule(dep)
			if !ok {
				continue
			}
			if _, seen := issuers[target]; !seen {
				issuers[target] = graph.IssuerModule(id)
				queue = append(queue, target)
			}
		}
	}
	return issuers
}

func snapshot(mg *graph.ModuleGraph, id graph.ModuleIdentifier) moduleSnapshot {
	m := mg.MustModule(id)
	s := moduleSnapshot{children: make(map[graph.ModuleIdentifier][]string)}
	for _, depID := range m.Dependencies {
		dep := mg.MustDependency(depID)
		if dep.Weak {
			continue
		}
		target, ok := mg.ResolvedModule(depID)
		if !ok {
			continue
		}
		s.children[target] = append(s.children[target], dep.Names...)
	}
	for target, names := range s.children {
		s.children[target] = slices.Compact(slices.Sorted(slices.Values(names)))
	}
	for _, bid := range m.Blocks {
		b := mg.MustBlock(bid)
		s.blocks = append(s.blocks, blockSnapshot{id: bid, options: b.GroupOptions})
	}
	return s
}
