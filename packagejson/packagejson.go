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

// Package packagejson parses package.json files and answers the questions a
// bundler resolver asks of them: entry points, conditional exports, import
// maps and browser field replacements.
package packagejson

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"

	"bennypowers.dev/modgraph/fs"
)

// ErrNotExported is returned when a subpath is not exported by the package.
var ErrNotExported = errors.New("not exported by package.json")

// ESMConditions is the default condition priority for import statements.
var ESMConditions = []string{"browser", "import", "module", "default"}

// CommonJSConditions is the default condition priority for require calls.
var CommonJSConditions = []string{"browser", "require", "module", "default"}

// DefaultMainFields is the order of entry point fields tried when a package
// has no exports.
var DefaultMainFields = []string{"browser", "module", "main"}

// PackageJSON is the subset of package.json relevant for module resolution.
type PackageJSON struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Type    string `json:"type,omitempty"`
	Main    string `json:"main,omitempty"`
	Module  string `json:"module,omitempty"`
	// Browser is either an entry point string or a map of replacements
	// whose values are paths or false.
	Browser     any `json:"browser,omitempty"`
	Exports     any `json:"exports,omitempty"`
	Imports     any `json:"imports,omitempty"`
	SideEffects any `json:"sideEffects,omitempty"`
	Workspaces  any `json:"workspaces,omitempty"`
}

// Parse parses package.json data.
func Parse(data []byte) (*PackageJSON, error) {
	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// ParseFile parses a package.json file.
func ParseFile(fsys fs.FileSystem, path string) (*PackageJSON, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// IsModule reports whether .js files in the package are ES modules.
func (pkg *PackageJSON) IsModule() bool {
	return pkg.Type == "module"
}

// HasSideEffects reports whether the package declares side effects for the
// given package-relative path. Packages that say nothing have side effects.
func (pkg *PackageJSON) HasSideEffects(relPath string) bool {
	switch v := pkg.SideEffects.(type) {
	case bool:
		return v
	case []any:
		relPath = trimDotSlash(relPath)
		for _, item := range v {
			if s, ok := item.(string); ok && trimDotSlash(s) == relPath {
				return true
			}
		}
		return false
	}
	return true
}

// MainEntry returns the first non-empty entry point among fields, which may
// name "browser", "module" and "main". A browser map is skipped.
func (pkg *PackageJSON) MainEntry(fields []string) (string, bool) {
	if len(fields) == 0 {
		fields = DefaultMainFields
	}
	for _, f := range fields {
		var v string
		switch f {
		case "browser":
			v, _ = pkg.Browser.(string)
		case "module":
			v = pkg.Module
		case "main":
			v = pkg.Main
		}
		if v != "" {
			return trimDotSlash(v), true
		}
	}
	return "", false
}

// BrowserReplacement looks key up in a browser replacement map. Keys are
// either package-relative paths ("./lib/node.js") or bare module names
// ("fs"). ignored is set when the replacement is false.
func (pkg *PackageJSON) BrowserReplacement(key string) (replacement string, ignored, ok bool) {
	m, isMap := pkg.Browser.(map[string]any)
	if !isMap {
		return "", false, false
	}
	candidates := []string{key}
	if strings.HasPrefix(key, "./") {
		candidates = append(candidates, trimDotSlash(key))
	}
	for _, c := range candidates {
		v, found := m[c]
		if !found {
			continue
		}
		switch t := v.(type) {
		case bool:
			if !t {
				return "", true, true
			}
		case string:
			return t, false, true
		}
	}
	return "", false, false
}

// WorkspacePatterns returns the globs of the workspaces field, given either
// as an array or as {"packages": [...]}.
func (pkg *PackageJSON) WorkspacePatterns() []string {
	list := pkg.Workspaces
	if m, ok := list.(map[string]any); ok {
		list = m["packages"]
	}
	items, _ := list.([]any)
	var patterns []string
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			patterns = append(patterns, s)
		}
	}
	return patterns
}

// HasExports reports whether the package declares an exports field.
func (pkg *PackageJSON) HasExports() bool {
	return pkg.Exports != nil
}

// ResolveExport resolves a subpath ("." or "./sub") through the exports
// field using conditions in priority order. The result is relative to the
// package directory, without a leading "./".
func (pkg *PackageJSON) ResolveExport(subpath string, conditions []string) (string, error) {
	if pkg.Exports == nil {
		if subpath == "." {
			if main, ok := pkg.MainEntry([]string{"main"}); ok {
				return main, nil
			}
		}
		return "", ErrNotExported
	}
	target, err := resolveMap(pkg.Exports, subpath, ".", conditions)
	return trimDotSlash(target), err
}

// ResolveImport resolves a "#specifier" through the imports field. Unlike
// exports, imports may map to other packages, so relative targets keep
// their leading "./".
func (pkg *PackageJSON) ResolveImport(specifier string, conditions []string) (string, error) {
	if pkg.Imports == nil || !strings.HasPrefix(specifier, "#") {
		return "", ErrNotExported
	}
	return resolveMap(pkg.Imports, specifier, "#", conditions)
}

// resolveMap matches key against an exports or imports value. prefix is the
// character every subpath key starts with.
func resolveMap(value any, key, prefix string, conditions []string) (string, error) {
	m, isMap := value.(map[string]any)
	if !isMap || !hasSubpathKeys(m, prefix) {
		// Sugar for {".": value}.
		if key != "." {
			return "", ErrNotExported
		}
		return resolveTarget(value, "", conditions)
	}

	if target, ok := m[key]; ok && !strings.Contains(key, "*") {
		return resolveTarget(target, "", conditions)
	}

	// Longest pattern prefix wins, as in Node's PATTERN_KEY_COMPARE.
	bestKey, bestMatch, bestBase := "", "", -1
	for pattern := range m {
		before, after, found := strings.Cut(pattern, "*")
		if !found {
			continue
		}
		if len(key) < len(before)+len(after) || !strings.HasPrefix(key, before) || !strings.HasSuffix(key, after) {
			continue
		}
		if len(before) > bestBase || (len(before) == bestBase && len(pattern) > len(bestKey)) {
			bestKey, bestBase = pattern, len(before)
			bestMatch = key[len(before) : len(key)-len(after)]
		}
	}
	if bestKey == "" {
		return "", ErrNotExported
	}
	return resolveTarget(m[bestKey], bestMatch, conditions)
}

// resolveTarget resolves a target value: a path, a condition map or a
// fallback array. match replaces "*" in path targets. null targets are
// excluded from the package.
func resolveTarget(value any, match string, conditions []string) (string, error) {
	switch v := value.(type) {
	case string:
		if match != "" || strings.Contains(v, "*") {
			v = strings.ReplaceAll(v, "*", match)
		}
		return v, nil
	case map[string]any:
		for _, cond := range effectiveConditions(conditions) {
			if target, ok := v[cond]; ok {
				if r, err := resolveTarget(target, match, conditions); err == nil {
					return r, nil
				}
			}
		}
	case []any:
		for _, item := range v {
			if r, err := resolveTarget(item, match, conditions); err == nil {
				return r, nil
			}
		}
	}
	return "", ErrNotExported
}

func effectiveConditions(conditions []string) []string {
	if len(conditions) == 0 {
		conditions = ESMConditions
	}
	if !slices.Contains(conditions, "default") {
		conditions = append(slices.Clone(conditions), "default")
	}
	return conditions
}

func hasSubpathKeys(m map[string]any, prefix string) bool {
	for key := range m {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// trimDotSlash removes a leading "./" from a path.
func trimDotSlash(path string) string {
	return strings.TrimPrefix(path, "./")
}
