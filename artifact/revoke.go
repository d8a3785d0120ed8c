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

package artifact

import (
	"maps"
	"slices"

	"bennypowers.dev/modgraph/diagnostic"
	"bennypowers.dev/modgraph/graph"
)

// RevokeModule removes a module from the graph and rolls back everything it
// contributed. Its own dependencies are deleted; the dependencies that
// resolved to it stay registered and are returned so the caller can
// factorize them again.
func (a *MakeArtifact) RevokeModule(id graph.ModuleIdentifier) []ForceBuildDep {
	mg := a.ModuleGraph
	mgm := mg.MustModuleGraphModule(id)

	owner := ModuleOwner(id)
	a.FileDependencies.Remove(owner)
	a.ContextDependencies.Remove(owner)
	a.MissingDependencies.Remove(owner)
	a.BuildDependencies.Remove(owner)

	var result []ForceBuildDep
	for _, dep := range mgm.IncomingConnections() {
		result = append(result, a.RevokeDependency(dep, false))
	}
	if m, ok := mg.Module(id); ok {
		for _, dep := range mg.AllDependencies(m) {
			a.RevokeDependency(dep, true)
		}
	}

	delete(a.failedModules, id)
	delete(a.issuerUpdateModules, id)
	delete(a.builtModules, id)
	a.revokedModules[id] = struct{}{}
	mg.RemoveModule(id)
	return result
}

// RevokeDependency clears a dependency's resolution bookkeeping and
// detaches it from its target. With force the dependency is deleted because
// the statement that produced it is gone; otherwise it is kept so it can be
// factorized again.
func (a *MakeArtifact) RevokeDependency(dep graph.DependencyID, force bool) ForceBuildDep {
	owner := DependencyOwner(dep)
	a.FileDependencies.Remove(owner)
	a.ContextDependencies.Remove(owner)
	a.MissingDependencies.Remove(owner)
	delete(a.factorizeInfo, dep)
	delete(a.failedDependencies, dep)

	mg := a.ModuleGraph
	parent, conn := mg.RevokeDependency(dep, force)
	if conn != nil {
		if target, ok := mg.ModuleGraphModule(conn.Module); ok {
			issuer, hasIssuer := target.Issuer().Module()
			orphaned := len(target.IncomingConnections()) == 0
			if orphaned || (hasIssuer && issuer == conn.OriginModule) || (!hasIssuer && conn.OriginModule == "") {
				a.issuerUpdateModules[conn.Module] = struct{}{}
			}
		}
	}
	if force {
		delete(a.entryDependencies, dep)
		delete(a.affectedDependencies, dep)
	}
	return ForceBuildDep{Dependency: dep, Parent: parent.Module}
}

// Diagnostics joins module and dependency diagnostics with their owners.
func (a *MakeArtifact) Diagnostics() []diagnostic.Diagnostic {
	mg := a.ModuleGraph
	var out []diagnostic.Diagnostic

	for _, id := range mg.Modules() {
		m := mg.MustModule(id)
		for _, d := range m.Diagnostics {
			d.Module = string(id)
			if d.File == "" {
				d.File = m.Resource
			}
			out = append(out, d)
		}
	}

	for _, dep := range slices.Sorted(maps.Keys(a.factorizeInfo)) {
		info := a.factorizeInfo[dep]
		if len(info.Diagnostics) == 0 {
			continue
		}
		parent, _ := mg.DependencyParent(dep)
		d, _ := mg.Dependency(dep)
		for _, diag := range info.Diagnostics {
			diag.Module = string(parent.Module)
			if d != nil {
				diag.Request = d.Request
				if diag.Line == 0 {
					diag.Line = d.Line
				}
			}
			if diag.File == "" && parent.Module != "" {
				if m, ok := mg.Module(parent.Module); ok {
					diag.File = m.Resource
				}
			}
			out = append(out, diag)
		}
	}

	diagnostic.Sort(out)
	return out
}
