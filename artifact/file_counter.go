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
	"strconv"
	"strings"

	"bennypowers.dev/modgraph/graph"
)

// Owner keys the contribution of one module or dependency to a FileCounter.
type Owner string

// ModuleOwner returns the owner key of a module's build info.
func ModuleOwner(id graph.ModuleIdentifier) Owner {
	return Owner("module:" + string(id))
}

// DependencyOwner returns the owner key of a dependency's factorize info.
func DependencyOwner(id graph.DependencyID) Owner {
	return Owner("dependency:" + id.String())
}

// Module returns the module identifier of a module owner.
func (o Owner) Module() (graph.ModuleIdentifier, bool) {
	id, ok := strings.CutPrefix(string(o), "module:")
	return graph.ModuleIdentifier(id), ok
}

// Dependency returns the dependency identifier of a dependency owner.
func (o Owner) Dependency() (graph.DependencyID, bool) {
	n, ok := strings.CutPrefix(string(o), "dependency:dep#")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(n, 10, 32)
	if err != nil {
		return 0, false
	}
	return graph.DependencyID(id), true
}

// FileCounter reference-counts watched paths by owner. Removing an owner
// subtracts exactly what it added, so contributions never leak across
// rebuilds. Paths whose count rises from or falls to zero are logged as
// added or removed until ResetIncrementalInfo.
type FileCounter struct {
	owners  map[Owner][]string
	counts  map[string]int
	byPath  map[string]map[Owner]struct{}
	added   map[string]struct{}
	removed map[string]struct{}
}

// NewFileCounter creates an empty counter.
func NewFileCounter() *FileCounter {
	return &FileCounter{
		owners:  make(map[Owner][]string),
		counts:  make(map[string]int),
		byPath:  make(map[string]map[Owner]struct{}),
		added:   make(map[string]struct{}),
		removed: make(map[string]struct{}),
	}
}

// Add records paths for owner, replacing its previous contribution.
func (c *FileCounter) Add(owner Owner, paths []string) {
	c.Remove(owner)
	if len(paths) == 0 {
		return
	}
	unique := slices.Compact(slices.Sorted(slices.Values(paths)))
	c.owners[owner] = unique
	for _, p := range unique {
		c.counts[p]++
		if c.byPath[p] == nil {
			c.byPath[p] = make(map[Owner]struct{})
		}
		c.byPath[p][owner] = struct{}{}
		if c.counts[p] == 1 {
			if _, ok := c.removed[p]; ok {
				delete(c.removed, p)
			} else {
				c.added[p] = struct{}{}
			}
		}
	}
}

// Remove drops owner's contribution.
func (c *FileCounter) Remove(owner Owner) {
	paths, ok := c.owners[owner]
	if !ok {
		return
	}
	delete(c.owners, owner)
	for _, p := range paths {
		delete(c.byPath[p], owner)
		c.counts[p]--
		if c.counts[p] > 0 {
			continue
		}
		delete(c.counts, p)
		delete(c.byPath, p)
		if _, ok := c.added[p]; ok {
			delete(c.added, p)
		} else {
			c.removed[p] = struct{}{}
		}
	}
}

// Count returns how many owners reference path.
func (c *FileCounter) Count(path string) int {
	return c.counts[path]
}

// Contains reports whether any owner references path.
func (c *FileCounter) Contains(path string) bool {
	return c.counts[path] > 0
}

// Owners returns every owner referencing path, sorted.
func (c *FileCounter) Owners(path string) []Owner {
	return slices.Sorted(maps.Keys(c.byPath[path]))
}

// OwnedBy returns the paths owner contributed.
func (c *FileCounter) OwnedBy(owner Owner) []string {
	return slices.Clone(c.owners[owner])
}

// Files returns every referenced path, sorted.
func (c *FileCounter) Files() []string {
	return slices.Sorted(maps.Keys(c.counts))
}

// Snapshot returns a copy of the per-path counts.
func (c *FileCounter) Snapshot() map[string]int {
	return maps.Clone(c.counts)
}

// Added returns paths that gained their first owner since the last reset.
func (c *FileCounter) Added() []string {
	return slices.Sorted(maps.Keys(c.added))
}

// Removed returns paths that lost their last owner since the last reset.
func (c *FileCounter) Removed() []string {
	return slices.Sorted(maps.Keys(c.removed))
}

// ResetIncrementalInfo clears the added and removed logs.
func (c *FileCounter) ResetIncrementalInfo() {
	clear(c.added)
	clear(c.removed)
}
