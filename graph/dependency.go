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

// Package graph holds the module graph: modules, dependencies, async blocks
// and the connections between them.
//
// Nodes never point at each other directly. Every edge is an identifier
// looked up through the owning ModuleGraph, so cycles between modules cost
// nothing and removing a node is a map deletion.
package graph

import (
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
)

// DependencyID is a process-unique dependency identifier.
type DependencyID uint32

var lastDependencyID atomic.Uint32

// NextDependencyID allocates a fresh dependency identifier.
func NextDependencyID() DependencyID {
	return DependencyID(lastDependencyID.Add(1))
}

func (id DependencyID) String() string {
	return fmt.Sprintf("dep#%d", uint32(id))
}

// DependencyType tags what kind of statement produced a dependency.
type DependencyType string

const (
	TypeEntry         DependencyType = "entry"
	TypeESMImport     DependencyType = "esm import"
	TypeESMReexport   DependencyType = "esm export"
	TypeDynamicImport DependencyType = "dynamic import"
	TypeRequire       DependencyType = "cjs require"
)

// Category selects the resolution policy (export conditions) for a dependency.
type Category string

const (
	CategoryESM      Category = "esm"
	CategoryCommonJS Category = "commonjs"
)

// Category returns the resolution category for the type.
func (t DependencyType) Category() Category {
	if t == TypeRequire {
		return CategoryCommonJS
	}
	return CategoryESM
}

// ResolveOptions are per-dependency overrides of the resolver configuration.
type ResolveOptions struct {
	Conditions []string
	Extensions []string
	Alias      map[string]string
}

// Key returns a stable string form used to group identical resolutions.
func (o *ResolveOptions) Key() string {
	if o == nil {
		return ""
	}
	aliases := make([]string, 0, len(o.Alias))
	for k, v := range o.Alias {
		aliases = append(aliases, k+"="+v)
	}
	slices.Sort(aliases)
	return strings.Join(o.Conditions, ",") + ";" +
		strings.Join(o.Extensions, ",") + ";" +
		strings.Join(aliases, ",")
}

// Dependency is a request from a module (or an entry point) to another
// resource, before resolution.
type Dependency struct {
	ID      DependencyID
	Type    DependencyType
	Request string

	// Names are the bindings imported through this dependency: "default",
	// "*" for namespace imports and re-exports, or named bindings. Empty for
	// side-effect imports.
	Names []string

	// Weak dependencies are recorded but never followed (type-only imports).
	Weak bool

	// Layer and Context override the issuing module's layer and directory.
	Layer   string
	Context string

	ResolveOptions *ResolveOptions

	// Line is the 1-based source line of the statement.
	Line int
}

// NewDependency creates a dependency with a fresh identifier.
func NewDependency(typ DependencyType, request string) *Dependency {
	return &Dependency{
		ID:      NextDependencyID(),
		Type:    typ,
		Request: request,
	}
}

// NewEntryDependency creates the dependency an entry point issues.
func NewEntryDependency(request, layer string) *Dependency {
	dep := NewDependency(TypeEntry, request)
	dep.Layer = layer
	return dep
}

// Category returns the dependency's resolution category.
func (d *Dependency) Category() Category {
	return d.Type.Category()
}

// Clone copies the dependency under a fresh identifier.
func (d *Dependency) Clone() *Dependency {
	c := *d
	c.ID = NextDependencyID()
	c.Names = slices.Clone(d.Names)
	return &c
}

// DependencyParent locates a dependency inside its issuing module.
type DependencyParent struct {
	// Module is empty for entry dependencies.
	Module ModuleIdentifier
	// Block is set when the dependency lives inside an async block.
	Block AsyncBlockID
	Index int
}

// Connection is a resolved dependency → module edge. It exists only when
// factorization of its dependency succeeded.
type Connection struct {
	Dependency   DependencyID
	OriginModule ModuleIdentifier
	Module       ModuleIdentifier
}
