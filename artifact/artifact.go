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

// Package artifact holds the durable state of module graph construction:
// the graph itself plus the bookkeeping that lets a later pass rebuild only
// what changed.
package artifact

import (
	"maps"
	"slices"

	"bennypowers.dev/modgraph/diagnostic"
	"bennypowers.dev/modgraph/graph"
)

// State is the artifact lifecycle.
type State int

const (
	// Uninitialized artifacts have never completed a pass and may be
	// recovered from a persistent cache.
	Uninitialized State = iota
	// Initialized artifacts have completed at least one pass.
	Initialized
)

func (s State) String() string {
	if s == Initialized {
		return "initialized"
	}
	return "uninitialized"
}

// FactorizeInfo is what resolving one dependency touched and reported.
type FactorizeInfo struct {
	FileDependencies    []string
	ContextDependencies []string
	MissingDependencies []string
	Diagnostics         []diagnostic.Diagnostic
}

// ForceBuildDep is a dependency to factorize again, with the module that
// issued it. Parent is empty for entry dependencies.
type ForceBuildDep struct {
	Dependency graph.DependencyID
	Parent     graph.ModuleIdentifier
}

type moduleSet map[graph.ModuleIdentifier]struct{}

func (s moduleSet) sorted() []graph.ModuleIdentifier {
	return slices.Sorted(maps.Keys(s))
}

type dependencySet map[graph.DependencyID]struct{}

func (s dependencySet) sorted() []graph.DependencyID {
	return slices.Sorted(maps.Keys(s))
}

// MakeArtifact is the incremental state of module graph construction. It is
// created once and repaired in place by every pass.
type MakeArtifact struct {
	State       State
	ModuleGraph *graph.ModuleGraph

	// Watched paths contributed by module builds and dependency resolutions.
	FileDependencies    *FileCounter
	ContextDependencies *FileCounter
	MissingDependencies *FileCounter
	BuildDependencies   *FileCounter

	// HasModuleGraphChange is set after a pass when the graph's shape may
	// differ from the previous pass.
	HasModuleGraphChange bool

	entryDependencies  dependencySet
	failedDependencies dependencySet
	failedModules      moduleSet
	factorizeInfo      map[graph.DependencyID]*FactorizeInfo

	// per-pass
	builtModules         moduleSet
	revokedModules       moduleSet
	issuerUpdateModules  moduleSet
	affectedDependencies dependencySet
}

// New creates an empty, uninitialized artifact.
func New() *MakeArtifact {
	return &MakeArtifact{
		ModuleGraph:          graph.NewModuleGraph(),
		FileDependencies:     NewFileCounter(),
		ContextDependencies:  NewFileCounter(),
		MissingDependencies:  NewFileCounter(),
		BuildDependencies:    NewFileCounter(),
		entryDependencies:    make(dependencySet),
		failedDependencies:   make(dependencySet),
		failedModules:        make(moduleSet),
		factorizeInfo:        make(map[graph.DependencyID]*FactorizeInfo),
		builtModules:         make(moduleSet),
		revokedModules:       make(moduleSet),
		issuerUpdateModules:  make(moduleSet),
		affectedDependencies: make(dependencySet),
	}
}

// AddEntryDependency registers an entry dependency in the graph.
func (a *MakeArtifact) AddEntryDependency(dep *graph.Dependency) {
	a.ModuleGraph.AddDependency(dep, graph.DependencyParent{})
	a.entryDependencies[dep.ID] = struct{}{}
}

// EntryDependencies returns the entry dependency ids in ascending order.
func (a *MakeArtifact) EntryDependencies() []graph.DependencyID {
	return a.entryDependencies.sorted()
}

// IsEntryDependency reports whether dep is an entry dependency.
func (a *MakeArtifact) IsEntryDependency(dep graph.DependencyID) bool {
	_, ok := a.entryDependencies[dep]
	return ok
}

// FailedDependencies returns dependencies whose last factorization failed.
func (a *MakeArtifact) FailedDependencies() []graph.DependencyID {
	return a.failedDependencies.sorted()
}

// IsFailedDependency reports whether dep's last factorization failed.
func (a *MakeArtifact) IsFailedDependency(dep graph.DependencyID) bool {
	_, ok := a.failedDependencies[dep]
	return ok
}

// MarkDependencyFailed records a failed factorization. A failed dependency
// never has a connection.
func (a *MakeArtifact) MarkDependencyFailed(dep graph.DependencyID) {
	a.ModuleGraph.RemoveConnection(dep)
	a.failedDependencies[dep] = struct{}{}
}

// ClearDependencyFailed forgets a previous failure.
func (a *MakeArtifact) ClearDependencyFailed(dep graph.DependencyID) {
	delete(a.failedDependencies, dep)
}

// FailedModules returns modules whose last build failed.
func (a *MakeArtifact) FailedModules() []graph.ModuleIdentifier {
	return a.failedModules.sorted()
}

// IsFailedModule reports whether the module's last build failed.
func (a *MakeArtifact) IsFailedModule(id graph.ModuleIdentifier) bool {
	_, ok := a.failedModules[id]
	return ok
}

// SetModuleFailed records or clears a build failure.
func (a *MakeArtifact) SetModuleFailed(id graph.ModuleIdentifier, failed bool) {
	if failed {
		a.failedModules[id] = struct{}{}
	} else {
		delete(a.failedModules, id)
	}
}

// MarkBuilt records that a module was added during this pass.
func (a *MakeArtifact) MarkBuilt(id graph.ModuleIdentifier) {
	a.builtModules[id] = struct{}{}
}

// BuiltModules returns the modules added during this pass.
func (a *MakeArtifact) BuiltModules() []graph.ModuleIdentifier {
	return a.builtModules.sorted()
}

// RevokedModules returns the modules revoked during this pass.
func (a *MakeArtifact) RevokedModules() []graph.ModuleIdentifier {
	return a.revokedModules.sorted()
}

// WasRevoked reports whether the module was revoked during this pass.
func (a *MakeArtifact) WasRevoked(id graph.ModuleIdentifier) bool {
	_, ok := a.revokedModules[id]
	return ok
}

// IssuerUpdateModules returns modules that lost a connection from their
// issuer and need their issuer recomputed.
func (a *MakeArtifact) IssuerUpdateModules() []graph.ModuleIdentifier {
	return a.issuerUpdateModules.sorted()
}

// ClearIssuerUpdate removes a module from the issuer-update set.
func (a *MakeArtifact) ClearIssuerUpdate(id graph.ModuleIdentifier) {
	delete(a.issuerUpdateModules, id)
}

// MarkAffected records that a dependency is factorized during this pass.
func (a *MakeArtifact) MarkAffected(dep graph.DependencyID) {
	a.affectedDependencies[dep] = struct{}{}
}

// AffectedDependencies returns the dependencies factorized during this pass.
func (a *MakeArtifact) AffectedDependencies() []graph.DependencyID {
	return a.affectedDependencies.sorted()
}

// SetFactorizeInfo stores what resolving dep touched, replacing any
// previous record and its file contributions.
func (a *MakeArtifact) SetFactorizeInfo(dep graph.DependencyID, info *FactorizeInfo) {
	owner := DependencyOwner(dep)
	a.FileDependencies.Add(owner, info.FileDependencies)
	a.ContextDependencies.Add(owner, info.ContextDependencies)
	a.MissingDependencies.Add(owner, info.MissingDependencies)
	a.factorizeInfo[dep] = info
}

// FactorizeInfo returns the stored resolution record of dep.
func (a *MakeArtifact) FactorizeInfo(dep graph.DependencyID) (*FactorizeInfo, bool) {
	info, ok := a.factorizeInfo[dep]
	return info, ok
}

// ApplyBuildInfo records the paths a module build touched.
func (a *MakeArtifact) ApplyBuildInfo(id graph.ModuleIdentifier, info graph.BuildInfo) {
	owner := ModuleOwner(id)
	a.FileDependencies.Add(owner, info.FileDependencies)
	a.ContextDependencies.Add(owner, info.ContextDependencies)
	a.MissingDependencies.Add(owner, info.MissingDependencies)
	a.BuildDependencies.Add(owner, info.BuildDependencies)
}

// ResetTemporaryData clears per-pass logs. The graph and durable sets are
// kept.
func (a *MakeArtifact) ResetTemporaryData() {
	clear(a.builtModules)
	clear(a.revokedModules)
	clear(a.issuerUpdateModules)
	clear(a.affectedDependencies)
	a.FileDependencies.ResetIncrementalInfo()
	a.ContextDependencies.ResetIncrementalInfo()
	a.MissingDependencies.ResetIncrementalInfo()
	a.BuildDependencies.ResetIncrementalInfo()
}
