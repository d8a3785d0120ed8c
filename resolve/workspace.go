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

package resolve

import (
	iofs "io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"bennypowers.dev/modgraph/fs"
	"bennypowers.dev/modgraph/packagejson"
)

// WorkspacePackage is a package that lives in the repository instead of
// node_modules.
type WorkspacePackage struct {
	Name string // Package name from package.json
	Path string // Absolute path to package directory
}

// DiscoverWorkspacePackages finds the packages matched by the workspaces
// field of rootDir/package.json. Returns nil if no workspaces are defined.
func DiscoverWorkspacePackages(fsys fs.FileSystem, rootDir string) ([]WorkspacePackage, error) {
	rootPkg, err := packagejson.ParseFile(fsys, filepath.Join(rootDir, "package.json"))
	if err != nil {
		return nil, err
	}
	patterns := rootPkg.WorkspacePatterns()
	if len(patterns) == 0 {
		return nil, nil
	}
	for i, p := range patterns {
		patterns[i] = strings.TrimSuffix(strings.TrimPrefix(p, "./"), "/")
	}

	var packages []WorkspacePackage
	err = iofs.WalkDir(fsys, rootDir, func(p string, d iofs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		name := d.Name()
		if p != rootDir && (name == "node_modules" || strings.HasPrefix(name, ".")) {
			return iofs.SkipDir
		}
		rel := filepath.ToSlash(mustRel(rootDir, p))
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, rel); !ok {
				continue
			}
			if pkg, err := parseWorkspacePackage(fsys, p); err == nil {
				packages = append(packages, pkg)
			}
			break
		}
		return nil
	})
	return packages, err
}

// parseWorkspacePackage reads the package.json in dir. Packages without a
// name cannot be imported and are skipped.
func parseWorkspacePackage(fsys fs.FileSystem, dir string) (WorkspacePackage, error) {
	pkg, err := packagejson.ParseFile(fsys, filepath.Join(dir, "package.json"))
	if err != nil {
		return WorkspacePackage{}, err
	}
	if pkg.Name == "" {
		return WorkspacePackage{}, ErrNotFound
	}
	return WorkspacePackage{Name: pkg.Name, Path: dir}, nil
}

// WithWorkspaces returns a Resolver that resolves bare requests for the
// given packages to their directories before searching node_modules.
func (r *Resolver) WithWorkspaces(packages []WorkspacePackage) *Resolver {
	c := r.clone()
	c.workspaces = make(map[string]string, len(packages))
	for _, p := range packages {
		c.workspaces[p.Name] = p.Path
	}
	return c
}
