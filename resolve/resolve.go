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

// Package resolve maps import requests to files the way Node and bundlers
// do: relative and absolute paths with extension and index probing,
// node_modules lookup, package exports and imports with conditions, main
// fields, aliases and browser field replacements.
//
// Every resolution reports the paths it looked at so the caller can watch
// them: files that exist, paths that were probed and missing, and package
// directories whose contents decide the result.
package resolve

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"bennypowers.dev/modgraph/fs"
	"bennypowers.dev/modgraph/graph"
	"bennypowers.dev/modgraph/internal/logging"
	"bennypowers.dev/modgraph/packagejson"
)

// ErrNotFound is returned when a request cannot be resolved.
var ErrNotFound = errors.New("module not found")

// DefaultExtensions are probed, in order, for extensionless requests.
var DefaultExtensions = []string{".tsx", ".ts", ".mjs", ".js", ".jsx", ".json"}

// Request is one resolution request.
type Request struct {
	Request  string
	Context  string
	Category graph.Category
	// Options override the resolver configuration for this request.
	Options *graph.ResolveOptions
}

// Result is the outcome of a resolution. The dependency slices are filled
// also when resolution fails.
type Result struct {
	// Path is the resolved file, empty when Ignored.
	Path string
	// Ignored is set when a browser field maps the request to false.
	Ignored bool
	// Package is the package.json nearest to Path, if any.
	Package *packagejson.PackageJSON

	FileDependencies    []string
	ContextDependencies []string
	MissingDependencies []string
}

// Resolver resolves requests against a filesystem. Resolvers are immutable
// and safe for concurrent use; the With methods return modified copies.
type Resolver struct {
	fs                 fs.FileSystem
	logger             logging.Logger
	pkgCache           packagejson.Cache
	extensions         []string
	alias              map[string]string
	esmConditions      []string
	commonJSConditions []string
	mainFields         []string
	workspaces         map[string]string
}

// New creates a Resolver with default extensions, conditions and main
// fields.
func New(fsys fs.FileSystem, logger logging.Logger) *Resolver {
	return &Resolver{
		fs:                 fsys,
		logger:             logging.OrNop(logger),
		pkgCache:           packagejson.NewMemoryCache(),
		extensions:         DefaultExtensions,
		esmConditions:      packagejson.ESMConditions,
		commonJSConditions: packagejson.CommonJSConditions,
		mainFields:         packagejson.DefaultMainFields,
	}
}

func (r *Resolver) clone() *Resolver {
	c := *r
	return &c
}

// WithExtensions returns a Resolver probing exts for extensionless requests.
func (r *Resolver) WithExtensions(exts []string) *Resolver {
	c := r.clone()
	c.extensions = exts
	return c
}

// WithAlias returns a Resolver that rewrites requests matching an alias key
// exactly, or as a path prefix, to the aliased value.
func (r *Resolver) WithAlias(alias map[string]string) *Resolver {
	c := r.clone()
	c.alias = alias
	return c
}

// WithConditions returns a Resolver using conditions for import statements.
// The require conditions swap "import" for "require".
func (r *Resolver) WithConditions(conditions []string) *Resolver {
	c := r.clone()
	c.esmConditions = conditions
	c.commonJSConditions = make([]string, len(conditions))
	for i, cond := range conditions {
		if cond == "import" {
			cond = "require"
		}
		c.commonJSConditions[i] = cond
	}
	return c
}

// WithMainFields returns a Resolver trying fields for package entry points.
func (r *Resolver) WithMainFields(fields []string) *Resolver {
	c := r.clone()
	c.mainFields = fields
	return c
}

// WithPackageCache returns a Resolver sharing cache for package.json files.
func (r *Resolver) WithPackageCache(cache packagejson.Cache) *Resolver {
	c := r.clone()
	c.pkgCache = cache
	return c
}

// WithOptions returns a Resolver with per-request overrides applied.
func (r *Resolver) WithOptions(opts *graph.ResolveOptions) *Resolver {
	if opts == nil {
		return r
	}
	c := r
	if len(opts.Conditions) > 0 {
		c = c.WithConditions(opts.Conditions)
	}
	if len(opts.Extensions) > 0 {
		c = c.WithExtensions(opts.Extensions)
	}
	if len(opts.Alias) > 0 {
		merged := make(map[string]string, len(r.alias)+len(opts.Alias))
		for k, v := range r.alias {
			merged[k] = v
		}
		for k, v := range opts.Alias {
			merged[k] = v
		}
		c = c.WithAlias(merged)
	}
	return c
}

// PackageCache returns the package.json cache.
func (r *Resolver) PackageCache() packagejson.Cache {
	return r.pkgCache
}

// resolution accumulates the paths one Resolve call touched.
type resolution struct {
	r      *Resolver
	result Result
}

func (s *resolution) file(p string)    { s.result.FileDependencies = append(s.result.FileDependencies, p) }
func (s *resolution) missing(p string) { s.result.MissingDependencies = append(s.result.MissingDependencies, p) }
func (s *resolution) context(p string) {
	s.result.ContextDependencies = append(s.result.ContextDependencies, p)
}

// Resolve resolves req. The result carries the touched paths even when an
// error is returned.
func (r *Resolver) Resolve(req Request) (Result, error) {
	r = r.WithOptions(req.Options)
	s := &resolution{r: r}

	conditions := r.esmConditions
	if req.Category == graph.CategoryCommonJS {
		conditions = r.commonJSConditions
	}

	request := r.applyAlias(req.Request)
	path, ignored, err := s.resolve(request, req.Context, conditions)
	if err != nil {
		s.result.Path = ""
		return s.result, fmt.Errorf("%w: can't resolve %q in %q", err, req.Request, req.Context)
	}
	if ignored {
		s.result.Ignored = true
		return s.result, nil
	}

	// Browser field replacements of the resolved file.
	if pkgDir, pkg, ok := s.nearestPackage(filepath.Dir(path)); ok {
		key := "./" + filepath.ToSlash(mustRel(pkgDir, path))
		if replacement, ignore, found := pkg.BrowserReplacement(key); found {
			if ignore {
				s.result.Ignored = true
				return s.result, nil
			}
			path, err = s.resolveFileOrDirectory(filepath.Join(pkgDir, replacement))
			if err != nil {
				return s.result, fmt.Errorf("%w: browser replacement %q for %q", err, replacement, req.Request)
			}
		}
		s.result.Package = pkg
	}

	s.result.Path = path
	r.logger.Debug("resolved %q in %s to %s", req.Request, req.Context, path)
	return s.result, nil
}

func (r *Resolver) applyAlias(request string) string {
	if target, ok := r.alias[request]; ok {
		return target
	}
	// Longest prefix alias wins.
	best := ""
	for key := range r.alias {
		if strings.HasPrefix(request, key+"/") && len(key) > len(best) {
			best = key
		}
	}
	if best != "" {
		return r.alias[best] + request[len(best):]
	}
	return request
}

func (s *resolution) resolve(request, context string, conditions []string) (string, bool, error) {
	switch {
	case request == "":
		return "", false, ErrNotFound
	case isRelative(request):
		p, err := s.resolveFileOrDirectory(filepath.Join(context, request))
		return p, false, err
	case filepath.IsAbs(request):
		p, err := s.resolveFileOrDirectory(filepath.Clean(request))
		return p, false, err
	case strings.HasPrefix(request, "#"):
		return s.resolvePackageImport(request, context, conditions)
	default:
		return s.resolveBare(request, context, conditions)
	}
}

func (s *resolution) resolvePackageImport(request, context string, conditions []string) (string, bool, error) {
	pkgDir, pkg, ok := s.nearestPackage(context)
	if !ok {
		return "", false, ErrNotFound
	}
	target, err := pkg.ResolveImport(request, conditions)
	if err != nil {
		return "", false, err
	}
	if isRelative(target) {
		p, err := s.resolveExact(filepath.Join(pkgDir, target))
		return p, false, err
	}
	return s.resolveBare(target, pkgDir, conditions)
}

func (s *resolution) resolveBare(request, context string, conditions []string) (string, bool, error) {
	// Browser field replacements of bare modules, e.g. {"fs": false}.
	if pkgDir, pkg, ok := s.nearestPackage(context); ok {
		if replacement, ignore, found := pkg.BrowserReplacement(request); found {
			if ignore {
				return "", true, nil
			}
			if isRelative(replacement) {
				p, err := s.resolveFileOrDirectory(filepath.Join(pkgDir, replacement))
				return p, false, err
			}
			request = replacement
		}
	}

	name, subpath := splitPackageRequest(request)
	if dir, ok := s.r.workspaces[name]; ok {
		p, err := s.resolvePackage(dir, subpath, conditions)
		return p, false, err
	}
	for dir := context; ; {
		pkgDir := filepath.Join(dir, "node_modules", name)
		if fs.IsDir(s.r.fs, pkgDir) {
			p, err := s.resolvePackage(pkgDir, subpath, conditions)
			return p, false, err
		}
		s.missing(pkgDir)

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, ErrNotFound
}

func (s *resolution) resolvePackage(pkgDir, subpath string, conditions []string) (string, error) {
	s.context(pkgDir)
	pkgPath := filepath.Join(pkgDir, "package.json")
	pkg, err := s.r.loadPackage(pkgPath)
	if err != nil {
		s.missing(pkgPath)
		return s.resolveFileOrDirectory(filepath.Join(pkgDir, subpath))
	}
	s.file(pkgPath)

	if pkg.HasExports() {
		target, err := pkg.ResolveExport(subpath, conditions)
		if err != nil {
			return "", fmt.Errorf("%w: %s is not exported from %s", err, subpath, pkgDir)
		}
		return s.resolveExact(filepath.Join(pkgDir, target))
	}
	if subpath == "." {
		if entry, ok := pkg.MainEntry(s.r.mainFields); ok {
			if p, err := s.resolveFileOrDirectory(filepath.Join(pkgDir, entry)); err == nil {
				return p, nil
			}
		}
		return s.resolveIndex(pkgDir)
	}
	return s.resolveFileOrDirectory(filepath.Join(pkgDir, subpath))
}

// resolveExact resolves an exports target, which names a file exactly.
func (s *resolution) resolveExact(p string) (string, error) {
	if fs.IsFile(s.r.fs, p) {
		s.file(p)
		return p, nil
	}
	s.missing(p)
	return "", ErrNotFound
}

func (s *resolution) resolveFileOrDirectory(p string) (string, error) {
	if f, ok := s.resolveFile(p); ok {
		return f, nil
	}
	if !fs.IsDir(s.r.fs, p) {
		return "", ErrNotFound
	}
	pkgPath := filepath.Join(p, "package.json")
	if pkg, err := s.r.loadPackage(pkgPath); err == nil {
		s.file(pkgPath)
		if entry, ok := pkg.MainEntry(s.r.mainFields); ok {
			if f, ok := s.resolveFile(filepath.Join(p, entry)); ok {
				return f, nil
			}
		}
	}
	return s.resolveIndex(p)
}

func (s *resolution) resolveIndex(dir string) (string, error) {
	if f, ok := s.resolveFile(filepath.Join(dir, "index")); ok {
		return f, nil
	}
	return "", ErrNotFound
}

// resolveFile probes p and p with each extension.
func (s *resolution) resolveFile(p string) (string, bool) {
	candidates := []string{p}
	for _, ext := range s.r.extensions {
		candidates = append(candidates, p+ext)
	}
	for _, c := range candidates {
		if fs.IsFile(s.r.fs, c) {
			s.file(c)
			return c, true
		}
		s.missing(c)
	}
	return "", false
}

// nearestPackage finds the package.json closest to dir.
func (s *resolution) nearestPackage(dir string) (string, *packagejson.PackageJSON, bool) {
	for {
		if filepath.Base(dir) != "node_modules" {
			pkgPath := filepath.Join(dir, "package.json")
			if pkg, err := s.r.loadPackage(pkgPath); err == nil {
				s.file(pkgPath)
				return dir, pkg, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil, false
		}
		dir = parent
	}
}

func (r *Resolver) loadPackage(pkgPath string) (*packagejson.PackageJSON, error) {
	return r.pkgCache.GetOrLoad(pkgPath, func() (*packagejson.PackageJSON, error) {
		pkg, err := packagejson.ParseFile(r.fs, pkgPath)
		if err != nil && r.fs.Exists(pkgPath) {
			r.logger.Warning("invalid %s: %v", pkgPath, err)
		}
		return pkg, err
	})
}

func isRelative(request string) bool {
	return request == "." || request == ".." ||
		strings.HasPrefix(request, "./") || strings.HasPrefix(request, "../")
}

// splitPackageRequest splits "@scope/pkg/sub" into "@scope/pkg" and "./sub".
func splitPackageRequest(request string) (string, string) {
	parts := strings.SplitN(request, "/", 3)
	n := 1
	if strings.HasPrefix(request, "@") && len(parts) > 1 {
		n = 2
	}
	if len(parts) <= n {
		return request, "."
	}
	name := strings.Join(parts[:n], "/")
	return name, "./" + strings.TrimPrefix(request, name+"/")
}

func mustRel(base, target string) string {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return target
	}
	return rel
}
