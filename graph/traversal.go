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

// AssignTraversalIndices computes pre-order and post-order indices and
// depths for every module reachable from entries.
//
// Synchronous dependencies are followed depth-first in source order.
// Modules only reachable through async blocks are visited afterwards, as
// new roots, in the order their blocks were discovered. Unreachable modules
// keep -1. The result depends only on graph shape, never on build order.
func (g *ModuleGraph) AssignTraversalIndices(entries []DependencyID) {
	for _, mgm := range g.mgms {
		mgm.PreOrderIndex = -1
		mgm.PostOrderIndex = -1
		mgm.Depth = -1
	}

	g.assignDepths(entries)

	pre, post := 0, 0
	var asyncRoots []ModuleIdentifier

	type frame struct {
		id       ModuleIdentifier
		children []ModuleIdentifier
		next     int
	}

	visit := func(root ModuleIdentifier) {
		rootMGM, ok := g.mgms[root]
		if !ok || rootMGM.PreOrderIndex >= 0 {
			return
		}
		rootMGM.PreOrderIndex = pre
		pre++
		children, blocks := g.traversalChildren(root)
		asyncRoots = append(asyncRoots, blocks...)
		stack := []*frame{{id: root, children: children}}

		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.next >= len(top.children) {
				g.mgms[top.id].PostOrderIndex = post
				post++
				stack = stack[:len(stack)-1]
				continue
			}
			child := top.children[top.next]
			top.next++
			mgm, ok := g.mgms[child]
			if !ok || mgm.PreOrderIndex >= 0 {
				continue
			}
			mgm.PreOrderIndex = pre
			pre++
			grandchildren, blocks := g.traversalChildren(child)
			asyncRoots = append(asyncRoots, blocks...)
			stack = append(stack, &frame{id: child, children: grandchildren})
		}
	}

	for _, dep := range entries {
		if target, ok := g.ResolvedModule(dep); ok {
			visit(target)
		}
	}
	for i := 0; i < len(asyncRoots); i++ {
		visit(asyncRoots[i])
	}
}

// traversalChildren returns the synchronous children of a module and the
// targets of its async blocks.
func (g *ModuleGraph) traversalChildren(id ModuleIdentifier) (sync, async []ModuleIdentifier) {
	m, ok := g.modules[id]
	if !ok {
		return nil, nil
	}
	for _, dep := range m.Dependencies {
		if target, ok := g.ResolvedModule(dep); ok {
			sync = append(sync, target)
		}
	}
	for _, b := range m.Blocks {
		block, ok := g.blocks[b]
		if !ok {
			continue
		}
		for _, dep := range block.Dependencies {
			if target, ok := g.ResolvedModule(dep); ok {
				async = append(async, target)
			}
		}
	}
	return sync, async
}

func (g *ModuleGraph) assignDepths(entries []DependencyID) {
	var queue []ModuleIdentifier
	for _, dep := range entries {
		target, ok := g.ResolvedModule(dep)
		if !ok {
			continue
		}
		if mgm := g.mgms[target]; mgm != nil && mgm.Depth < 0 {
			mgm.Depth = 0
			queue = append(queue, target)
		}
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		depth := g.mgms[current].Depth
		sync, async := g.traversalChildren(current)
		for _, child := range append(sync, async...) {
			if mgm := g.mgms[child]; mgm != nil && mgm.Depth < 0 {
				mgm.Depth = depth + 1
				queue = append(queue, child)
			}
		}
	}
}
