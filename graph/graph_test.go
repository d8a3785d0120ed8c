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

package graph_test

import (
	"slices"
	"testing"

	"bennypowers.dev/modgraph/graph"
)

type builder struct {
	g *graph.ModuleGraph
}

func (b builder) module(resource string) graph.ModuleIdentifier {
	id := graph.NewModuleIdentifier(graph.ModuleJavaScript, resource, "")
	b.g.AddModule(&graph.Module{Identifier: id, Type: graph.ModuleJavaScript, Resource: resource})
	b.g.AddModuleGraphModule(graph.NewModuleGraphModule(id))
	return id
}

func (b builder) entry(target graph.ModuleIdentifier) graph.DependencyID {
	dep := graph.NewEntryDependency("./entry", "")
	b.g.AddDependency(dep, graph.DependencyParent{})
	b.g.SetResolvedModule("", dep.ID, target)
	return dep.ID
}

func (b builder) link(from, to graph.ModuleIdentifier) graph.DependencyID {
	m := b.g.MustModule(from)
	dep := graph.NewDependency(graph.TypeESMImport, string(to))
	b.g.AddDependency(dep, graph.DependencyParent{Module: from, Index: len(m.Dependencies)})
	m.Dependencies = append(m.Dependencies, dep.ID)
	b.g.SetResolvedModule(from, dep.ID, to)
	return dep.ID
}

func (b builder) lazy(from, to graph.ModuleIdentifier) graph.DependencyID {
	m := b.g.MustModule(from)
	blockID := graph.AsyncBlockID(string(from) + "|0|" + string(to))
	dep := graph.NewDependency(graph.TypeDynamicImport, string(to))
	b.g.AddBlock(&graph.AsyncBlock{ID: blockID, Parent: from, Dependencies: []graph.DependencyID{dep.ID}})
	b.g.AddDependency(dep, graph.DependencyParent{Module: from, Block: blockID})
	m.Blocks = append(m.Blocks, blockID)
	b.g.SetResolvedModule(from, dep.ID, to)
	return dep.ID
}

func TestNewModuleIdentifier(t *testing.T) {
	if got := graph.NewModuleIdentifier(graph.ModuleJavaScript, "/app/a.js", ""); got != "javascript/auto|/app/a.js" {
		t.Errorf("Unexpected identifier %q", got)
	}
	if got := graph.NewModuleIdentifier(graph.ModuleJSON, "/app/a.json", "ssr"); got != "json|/app/a.json|ssr" {
		t.Errorf("Unexpected layered identifier %q", got)
	}
}

func TestConnections(t *testing.T) {
	b := builder{graph.NewModuleGraph()}
	a, x, y := b.module("/a.js"), b.module("/x.js"), b.module("/y.js")
	dep := b.link(a, x)

	if got := b.g.MustModuleGraphModule(x).IncomingConnections(); !slices.Equal(got, []graph.DependencyID{dep}) {
		t.Errorf("Incoming = %v", got)
	}
	if got := b.g.MustModuleGraphModule(a).OutgoingConnections(); !slices.Equal(got, []graph.DependencyID{dep}) {
		t.Errorf("Outgoing = %v", got)
	}

	// Reconnecting moves the edge.
	b.g.SetResolvedModule(a, dep, y)
	if len(b.g.MustModuleGraphModule(x).IncomingConnections()) != 0 {
		t.Error("Expected the old target to lose its incoming connection")
	}
	if target, _ := b.g.ResolvedModule(dep); target != y {
		t.Errorf("Expected %s, got %s", y, target)
	}
	if b.g.ConnectionCount() != 1 {
		t.Errorf("Expected 1 connection, got %d", b.g.ConnectionCount())
	}

	parent, conn := b.g.RevokeDependency(dep, false)
	if parent.Module != a || conn == nil || conn.Module != y {
		t.Errorf("Unexpected revoke result %+v %+v", parent, conn)
	}
	if _, ok := b.g.Dependency(dep); !ok {
		t.Error("Expected an unforced revoke to keep the dependency")
	}
	if len(b.g.MustModuleGraphModule(a).OutgoingConnections()) != 0 {
		t.Error("Expected the origin to lose its outgoing connection")
	}

	b.g.RevokeDependency(dep, true)
	if _, ok := b.g.Dependency(dep); ok {
		t.Error("Expected a forced revoke to delete the dependency")
	}
	if _, ok := b.g.DependencyParent(dep); ok {
		t.Error("Expected a forced revoke to delete the parent record")
	}
}

func TestRemoveModuleDropsBlocks(t *testing.T) {
	b := builder{graph.NewModuleGraph()}
	a, l := b.module("/a.js"), b.module("/lazy.js")
	dep := b.lazy(a, l)
	block := b.g.MustModule(a).Blocks[0]

	if got := b.g.AllDependencies(b.g.MustModule(a)); !slices.Equal(got, []graph.DependencyID{dep}) {
		t.Errorf("AllDependencies = %v", got)
	}
	b.g.RevokeDependency(dep, true)
	b.g.RemoveModule(a)
	if b.g.HasModule(a) {
		t.Error("Expected the module to be removed")
	}
	if _, ok := b.g.Block(block); ok {
		t.Error("Expected the module's blocks to be removed")
	}
	if _, ok := b.g.ModuleGraphModule(a); ok {
		t.Error("Expected the module's metadata to be removed")
	}
}

func TestMustLookupsPanic(t *testing.T) {
	g := graph.NewModuleGraph()
	for name, fn := range map[string]func(){
		"module":     func() { g.MustModule("javascript/auto|/nope.js") },
		"metadata":   func() { g.MustModuleGraphModule("javascript/auto|/nope.js") },
		"dependency": func() { g.MustDependency(graph.NextDependencyID()) },
		"block":      func() { g.MustBlock("nope") },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("Expected a panic")
				}
			}()
			fn()
		})
	}
}

func TestIssuerIsSetOnce(t *testing.T) {
	mgm := graph.NewModuleGraphModule("javascript/auto|/b.js")
	if mgm.Issuer().IsSet() {
		t.Fatal("Expected a new module to have no issuer")
	}
	if !mgm.SetIssuerIfUnset(graph.IssuerModule("javascript/auto|/a.js")) {
		t.Error("Expected the first issuer to be assigned")
	}
	if mgm.SetIssuerIfUnset(graph.IssuerModule("javascript/auto|/c.js")) {
		t.Error("Expected the issuer to be kept")
	}
	if issuer, _ := mgm.Issuer().Module(); issuer != "javascript/auto|/a.js" {
		t.Errorf("Unexpected issuer %q", issuer)
	}
	mgm.SetIssuer(graph.IssuerNone())
	if _, ok := mgm.Issuer().Module(); ok || !mgm.Issuer().IsSet() {
		t.Error("Expected an entry issuer with no module")
	}
}

func TestAssignTraversalIndices(t *testing.T) {
	b := builder{graph.NewModuleGraph()}
	a, bm, c, l, orphan := b.module("/a.js"), b.module("/b.js"), b.module("/c.js"), b.module("/lazy.js"), b.module("/orphan.js")
	entry := b.entry(a)
	b.link(a, bm)
	b.link(a, c)
	b.link(bm, c)
	b.lazy(a, l)
	b.link(l, a)

	b.g.AssignTraversalIndices([]graph.DependencyID{entry})

	tests := []struct {
		id               graph.ModuleIdentifier
		pre, post, depth int
	}{
		{a, 0, 2, 0},
		{bm, 1, 1, 1},
		{c, 2, 0, 1},
		{l, 3, 3, 1},
		{orphan, -1, -1, -1},
	}
	for _, tt := range tests {
		mgm := b.g.MustModuleGraphModule(tt.id)
		if mgm.PreOrderIndex != tt.pre || mgm.PostOrderIndex != tt.post || mgm.Depth != tt.depth {
			t.Errorf("%s: got pre=%d post=%d depth=%d, want pre=%d post=%d depth=%d",
				tt.id, mgm.PreOrderIndex, mgm.PostOrderIndex, mgm.Depth, tt.pre, tt.post, tt.depth)
		}
	}
}

func TestDependencyClone(t *testing.T) {
	dep := graph.NewDependency(graph.TypeESMImport, "./b.js")
	dep.Names = []string{"foo"}
	clone := dep.Clone()
	if clone.ID == dep.ID {
		t.Error("Expected a fresh identifier")
	}
	clone.Names[0] = "bar"
	if dep.Names[0] != "foo" {
		t.Error("Expected names to be copied")
	}
	if graph.NewDependency(graph.TypeRequire, "x").Category() != graph.CategoryCommonJS {
		t.Error("Expected require to use the commonjs category")
	}
}
