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
	"slices"

	"bennypowers.dev/modgraph/diagnostic"
)

// ModuleIdentifier is the stable key of a module. The same resolved resource
// with the same module type and layer always yields the same identifier.
type ModuleIdentifier string

// ModuleType selects how a module is built.
type ModuleType string

const (
	ModuleJavaScript ModuleType = "javascript/auto"
	ModuleJSON       ModuleType = "json"
	ModuleAsset      ModuleType = "asset"
)

// NewModuleIdentifier builds the identifier for a resource.
func NewModuleIdentifier(typ ModuleType, resource, layer string) ModuleIdentifier {
	id := string(typ) + "|" + resource
	if layer != "" {
		id += "|" + layer
	}
	return ModuleIdentifier(id)
}

// AsyncBlockID identifies a lazily loaded sub-graph inside a module.
type AsyncBlockID string

// GroupOptions describe how an async block is grouped downstream.
type GroupOptions struct {
	// Name is the requested chunk name, if any.
	Name string
}

// AsyncBlock is a dynamic import boundary.
type AsyncBlock struct {
	ID           AsyncBlockID
	Parent       ModuleIdentifier
	Request      string
	GroupOptions GroupOptions
	Dependencies []DependencyID
}

// BuildInfo records what a build touched, for cache invalidation.
type BuildInfo struct {
	// Hash is the content fingerprint of the built source.
	Hash      string
	Cacheable bool

	FileDependencies    []string
	ContextDependencies []string
	MissingDependencies []string
	BuildDependencies   []string
}

// Clone returns a deep copy.
func (b BuildInfo) Clone() BuildInfo {
	b.FileDependencies = slices.Clone(b.FileDependencies)
	b.ContextDependencies = slices.Clone(b.ContextDependencies)
	b.MissingDependencies = slices.Clone(b.MissingDependencies)
	b.BuildDependencies = slices.Clone(b.BuildDependencies)
	return b
}

// Module is a built unit representing one resolved resource.
type Module struct {
	Identifier ModuleIdentifier
	Type       ModuleType
	Resource   string
	RawRequest string
	Layer      string
	// Context is the directory requests inside this module resolve from.
	Context string

	Dependencies []DependencyID
	Blocks       []AsyncBlockID

	BuildInfo   BuildInfo
	Diagnostics []diagnostic.Diagnostic
}

// Issuer is the first module that imported a module. The zero value is
// unset; an entry module has a set issuer with no module.
type Issuer struct {
	set    bool
	module ModuleIdentifier
}

// IssuerModule returns an issuer pointing at m.
func IssuerModule(m ModuleIdentifier) Issuer {
	return Issuer{set: true, module: m}
}

// IssuerNone returns the issuer of an entry module.
func IssuerNone() Issuer {
	return Issuer{set: true}
}

// IsSet reports whether the issuer was assigned.
func (i Issuer) IsSet() bool {
	return i.set
}

// Module returns the issuing module, if there is one.
func (i Issuer) Module() (ModuleIdentifier, bool) {
	return i.module, i.set && i.module != ""
}

// ExportsInfo records the names a module provides.
type ExportsInfo struct {
	Provided []string
	// Unknown is set when exports cannot be determined statically.
	Unknown bool
}

// ModuleGraphModule is graph-level metadata wrapping a Module.
type ModuleGraphModule struct {
	Identifier ModuleIdentifier

	issuer   Issuer
	incoming map[DependencyID]struct{}
	outgoing map[DependencyID]struct{}

	// PreOrderIndex and PostOrderIndex are -1 until AssignTraversalIndices runs.
	PreOrderIndex  int
	PostOrderIndex int
	Depth          int

	ExportsInfo *ExportsInfo
}

// NewModuleGraphModule creates metadata for id with no connections.
func NewModuleGraphModule(id ModuleIdentifier) *ModuleGraphModule {
	return &ModuleGraphModule{
		Identifier:     id,
		incoming:       make(map[DependencyID]struct{}),
		outgoing:       make(map[DependencyID]struct{}),
		PreOrderIndex:  -1,
		PostOrderIndex: -1,
		Depth:          -1,
		ExportsInfo:    &ExportsInfo{Unknown: true},
	}
}

// Issuer returns the module's issuer.
func (m *ModuleGraphModule) Issuer() Issuer {
	return m.issuer
}

// SetIssuerIfUnset assigns the issuer only once. It reports whether the
// issuer was assigned by this call.
func (m *ModuleGraphModule) SetIssuerIfUnset(issuer Issuer) bool {
	if m.issuer.set {
		return false
	}
	m.issuer = issuer
	return true
}

// SetIssuer overrides the issuer. Used when the previous issuer was revoked.
func (m *ModuleGraphModule) SetIssuer(issuer Issuer) {
	m.issuer = issuer
}

// IncomingConnections returns the dependency ids connected to this module,
// in ascending order.
func (m *ModuleGraphModule) IncomingConnections() []DependencyID {
	return sortedIDs(m.incoming)
}

// OutgoingConnections returns the dependency ids of this module that are
// connected to another module, in ascending order.
func (m *ModuleGraphModule) OutgoingConnections() []DependencyID {
	return sortedIDs(m.outgoing)
}

func sortedIDs(set map[DependencyID]struct{}) []DependencyID {
	ids := make([]DependencyID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
