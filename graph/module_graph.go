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

package graph

import (
	"fmt"
	"maps"
	"slices"
)

// ModuleGraph is the arena of modules, dependencies, blocks and connections.
//
// ModuleGraph is not safe for concurrent mutation. During a build only the
// scheduler's main tasks write to it.
type ModuleGraph struct {
	modules      map[ModuleIdentifier]*Module
	mgms         map[ModuleIdentifier]*ModuleGraphModule
	dependencies map[DependencyID]*Dependency
	parents      map[DependencyID]DependencyParent
	connections  map[DependencyID]*Connection
	blocks       map[AsyncBlockID]*AsyncBlock
}

// NewModuleGraph creates an empty module graph.
func NewModuleGraph() *ModuleGraph {
	return &ModuleGraph{
		modules:      make(map[ModuleIdentifier]*Module),
		mgms:         make(map[ModuleIdentifier]*ModuleGraphModule),
		dependencies: make(map[DependencyID]*Dependency),
		parents:      make(map[DependencyID]DependencyParent),
		connections:  make(map[DependencyID]*Connection),
		blocks:       make(map[AsyncBlockID]*AsyncBlock),
	}
}

// AddModule inserts a built module.
func (g *ModuleGraph) AddModule(m *Module) {
	g.modules[m.Identifier] = m
}

// Module looks up a module.
func (g *ModuleGraph) Module(id ModuleIdentifier) (*Module, bool) {
	m, ok := g.modules[id]
	return m, ok
}

// MustModule looks up a module that is known to exist.
func (g *ModuleGraph) MustModule(id ModuleIdentifier) *Module {
	m, ok := g.modules[id]
	if !ok {
		panic(fmt.Sprintf("graph: module %q not found", id))
	}
	return m
}

// HasModule reports whether a module with id is in the graph.
func (g *ModuleGraph) HasModule(id ModuleIdentifier) bool {
	_, ok := g.modules[id]
	return ok
}

// Modules returns every module identifier in sorted order.
func (g *ModuleGraph) Modules() []ModuleIdentifier {
	return slices.Sorted(maps.Keys(g.modules))
}

// ModuleCount returns the number of modules.
func (g *ModuleGraph) ModuleCount() int {
	return len(g.modules)
}

// AddModuleGraphModule inserts graph metadata for a module.
func (g *ModuleGraph) AddModuleGraphModule(mgm *ModuleGraphModule) {
	g.mgms[mgm.Identifier] = mgm
}

// ModuleGraphModule looks up graph metadata.
func (g *ModuleGraph) ModuleGraphModule(id ModuleIdentifier) (*ModuleGraphModule, bool) {
	mgm, ok := g.mgms[id]
	return mgm, ok
}

// MustModuleGraphModule looks up graph metadata that is known to exist.
func (g *ModuleGraph) MustModuleGraphModule(id ModuleIdentifier) *ModuleGraphModule {
	mgm, ok := g.mgms[id]
	if !ok {
		panic(fmt.Sprintf("graph: module graph module %q not found", id))
	}
	return mgm
}

// AddDependency registers a dependency under its parent.
func (g *ModuleGraph) AddDependency(dep *Dependency, parent DependencyParent) {
	g.dependencies[dep.ID] = dep
	g.parents[dep.ID] = parent
}

// Dependency looks up a dependency.
func (g *ModuleGraph) Dependency(id DependencyID) (*Dependency, bool) {
	d, ok := g.dependencies[id]
	return d, ok
}

// MustDependency looks up a dependency that is known to exist.
func (g *ModuleGraph) MustDependency(id DependencyID) *Dependency {
	d, ok := g.dependencies[id]
	if !ok {
		panic(fmt.Sprintf("graph: %s not found", id))
	}
	return d
}

// DependencyCount returns the number of registered dependencies.
func (g *ModuleGraph) DependencyCount() int {
	return len(g.dependencies)
}

// DependencyParent returns where a dependency lives.
func (g *ModuleGraph) DependencyParent(id DependencyID) (DependencyParent, bool) {
	p, ok := g.parents[id]
	return p, ok
}

// AddBlock inserts an async block.
func (g *ModuleGraph) AddBlock(b *AsyncBlock) {
	g.blocks[b.ID] = b
}

// Block looks up an async block.
func (g *ModuleGraph) Block(id AsyncBlockID) (*AsyncBlock, bool) {
	b, ok := g.blocks[id]
	return b, ok
}

// MustBlock looks up an async block that is known to exist.
func (g *ModuleGraph) MustBlock(id AsyncBlockID) *AsyncBlock {
	b, ok := g.blocks[id]
	if !ok {
		panic(fmt.Sprintf("graph: async block %q not found", id))
	}
	return b
}

// SetResolvedModule connects a dependency to the module it resolved to.
// An existing connection for the dependency is replaced.
func (g *ModuleGraph) SetResolvedModule(origin ModuleIdentifier, dep DependencyID, target ModuleIdentifier) {
	if _, ok := g.dependencies[dep]; !ok {
		panic(fmt.Sprintf("graph: connecting unknown %s", dep))
	}
	targetMGM := g.MustModuleGraphModule(target)
	g.RemoveConnection(dep)

	g.connections[dep] = &Connection{
		Dependency:   dep,
		OriginModule: origin,
		Module:       target,
	}
	targetMGM.incoming[dep] = struct{}{}
	if origin != "" {
		g.MustModuleGraphModule(origin).outgoing[dep] = struct{}{}
	}
}

// Connection returns the connection of a dependency.
func (g *ModuleGraph) Connection(dep DependencyID) (*Connection, bool) {
	c, ok := g.connections[dep]
	return c, ok
}

// ConnectionCount returns the number of connections.
func (g *ModuleGraph) ConnectionCount() int {
	return len(g.connections)
}

// RemoveConnection detaches a dependency from its target module.
func (g *ModuleGraph) RemoveConnection(dep DependencyID) (*Connection, bool) {
	c, ok := g.connections[dep]
	if !ok {
		return nil, false
	}
	delete(g.connections, dep)
	if mgm, ok := g.mgms[c.Module]; ok {
		delete(mgm.incoming, dep)
	}
	if c.OriginModule != "" {
		if mgm, ok := g.mgms[c.OriginModule]; ok {
			delete(mgm.outgoing, dep)
		}
	}
	return c, true
}

// RevokeDependency removes the dependency's connection. With force the
// dependency itself is deleted; otherwise it stays registered so it can be
// factorized again.
func (g *ModuleGraph) RevokeDependency(dep DependencyID, force bool) (DependencyParent, *Connection) {
	conn, _ := g.RemoveConnection(dep)
	parent := g.parents[dep]
	if force {
		delete(g.dependencies, dep)
		delete(g.parents, dep)
	}
	return parent, conn
}

// RemoveModule deletes a module, its metadata and its async blocks.
// Connections must be detached by the caller first.
func (g *ModuleGraph) RemoveModule(id ModuleIdentifier) {
	if m, ok := g.modules[id]; ok {
		for _, b := range m.Blocks {
			delete(g.blocks, b)
		}
	}
	delete(g.modules, id)
	delete(g.mgms, id)
}

// AllDependencies returns a module's direct dependencies followed by the
// dependencies of its async blocks.
func (g *ModuleGraph) AllDependencies(m *Module) []DependencyID {
	deps := slices.Clone(m.Dependencies)
	for _, b := range m.Blocks {
		if block, ok := g.blocks[b]; ok {
			deps = append(deps, block.Dependencies...)
		}
	}
	return deps
}

// ResolvedModule returns the module a dependency is connected to.
func (g *ModuleGraph) ResolvedModule(dep DependencyID) (ModuleIdentifier, bool) {
	c, ok := g.connections[dep]
	if !ok {
		return "", false
	}
	return c.Module, true
}

// ExportsInfo returns the exports record of a module.
func (g *ModuleGraph) ExportsInfo(id ModuleIdentifier) *ExportsInfo {
	return g.MustModuleGraphModule(id).ExportsInfo
}
