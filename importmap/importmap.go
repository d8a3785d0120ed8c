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

// Package importmap derives an ES module import map from a module graph, so
// the bare specifiers the graph resolved can be loaded unbundled in a
// browser.
// See https://developer.mozilla.org/en-US/docs/Web/HTML/Element/script/type/importmap
package importmap

import (
	"encoding/json"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"bennypowers.dev/modgraph/graph"
)

// ImportMap represents an ES module import map.
type ImportMap struct {
	// Imports maps module specifiers to URLs.
	Imports map[string]string `json:"imports,omitempty"`

	// Scopes maps URL prefixes to import maps that apply when the referrer
	// URL starts with the scope prefix.
	Scopes map[string]map[string]string `json:"scopes,omitempty"`
}

// IsBare reports whether request is a bare specifier, which a browser can
// only load through an import map.
func IsBare(request string) bool {
	if request == "" || strings.HasPrefix(request, ".") || strings.HasPrefix(request, "/") || strings.HasPrefix(request, "#") {
		return false
	}
	return !strings.Contains(request, "://") && !strings.HasPrefix(request, "data:")
}

// URL returns the root-relative URL of resource when served from root.
func URL(root, resource string) string {
	rel, err := filepath.Rel(root, resource)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(resource)
	}
	return "/" + filepath.ToSlash(rel)
}

// FromGraph maps every bare specifier in mg to the URL of the module it
// resolved to. When importers disagree on a specifier, typically because
// of nested node_modules, the mapping seen from modules outside
// node_modules wins the top level and the others are scoped to the
// importing module's directory.
func FromGraph(mg *graph.ModuleGraph, root string) *ImportMap {
	type use struct {
		issuer graph.ModuleIdentifier
		url    string
	}
	uses := make(map[string][]use)

	for _, id := range mg.Modules() {
		m := mg.MustModule(id)
		deps := slices.Clone(m.Dependencies)
		for _, b := range m.Blocks {
			deps = append(deps, mg.MustBlock(b).Dependencies...)
		}
		for _, depID := range deps {
			dep := mg.MustDependency(depID)
			if !IsBare(dep.Request) {
				continue
			}
			target, ok := mg.ResolvedModule(depID)
			if !ok {
				continue
			}
			uses[dep.Request] = append(uses[dep.Request], use{
				issuer: id,
				url:    URL(root, mg.MustModule(target).Resource),
			})
		}
	}

	im := &ImportMap{}
	for _, specifier := range slices.Sorted(maps.Keys(uses)) {
		list := uses[specifier]
		// Importers outside node_modules first, then by shortest URL.
		slices.SortStableFunc(list, func(a, b use) int {
			ai, bi := inNodeModules(mg, a.issuer), inNodeModules(mg, b.issuer)
			if ai != bi {
				if ai {
					return 1
				}
				return -1
			}
			return len(a.url) - len(b.url)
		})
		top := list[0].url
		if im.Imports == nil {
			im.Imports = make(map[string]string)
		}
		im.Imports[specifier] = top
		for _, u := range list[1:] {
			if u.url == top {
				continue
			}
			scope := URL(root, filepath.Dir(mg.MustModule(u.issuer).Resource)) + "/"
			if im.Scopes == nil {
				im.Scopes = make(map[string]map[string]string)
			}
			if im.Scopes[scope] == nil {
				im.Scopes[scope] = make(map[string]string)
			}
			im.Scopes[scope][specifier] = u.url
		}
	}
	return im
}

func inNodeModules(mg *graph.ModuleGraph, id graph.ModuleIdentifier) bool {
	return strings.Contains(filepath.ToSlash(mg.MustModule(id).Resource), "/node_modules/")
}

// ToJSON converts the import map to an indented JSON string.
// Returns an empty string if the import map is nil or entirely empty.
func (im *ImportMap) ToJSON() string {
	if im == nil || (len(im.Imports) == 0 && len(im.Scopes) == 0) {
		return ""
	}
	bytes, err := json.MarshalIndent(im, "", "  ")
	if err != nil {
		return ""
	}
	return string(bytes)
}

// HTML wraps the import map in a script tag.
func (im *ImportMap) HTML() string {
	j := im.ToJSON()
	if j == "" {
		j = "{}"
	}
	return "<script type=\"importmap\">\n" + j + "\n</script>"
}
