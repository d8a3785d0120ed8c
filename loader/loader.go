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

// Package loader builds modules: it reads their source, fingerprints it and
// discovers the imports, dynamic imports and exports with tree-sitter.
package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"bennypowers.dev/modgraph/diagnostic"
	"bennypowers.dev/modgraph/fs"
	"bennypowers.dev/modgraph/graph"
	"bennypowers.dev/modgraph/internal/logging"
	"bennypowers.dev/modgraph/pipeline"
)

// DefaultCacheSize is the number of analyses kept by default.
const DefaultCacheSize = 4096

type analysisKey struct {
	hash uint64
	tsx  bool
}

// Builder implements pipeline.ModuleBuilder. Analyses are cached by content
// fingerprint, so rebuilding an unchanged file does not parse it again.
type Builder struct {
	fs       fs.FileSystem
	logger   logging.Logger
	analyses *lru.Cache[analysisKey, *Analysis]
}

var _ pipeline.ModuleBuilder = (*Builder)(nil)

// New creates a Builder caching up to cacheSize analyses.
func New(fsys fs.FileSystem, cacheSize int) (*Builder, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	analyses, err := lru.New[analysisKey, *Analysis](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create analysis cache: %w", err)
	}
	return &Builder{fs: fsys, logger: logging.Nop(), analyses: analyses}, nil
}

// WithLogger returns a Builder logging to logger.
func (b *Builder) WithLogger(logger logging.Logger) *Builder {
	c := *b
	c.logger = logging.OrNop(logger)
	return &c
}

// Fingerprint returns the content hash recorded in BuildInfo.Hash.
func Fingerprint(src []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(src))
}

// Build implements pipeline.ModuleBuilder.
func (b *Builder) Build(ctx context.Context, req pipeline.BuildRequest) (*pipeline.BuildResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := b.fs.ReadFile(req.Resource)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.Resource, err)
	}

	result := &pipeline.BuildResult{
		BuildInfo: graph.BuildInfo{
			Hash:             Fingerprint(src),
			Cacheable:        true,
			FileDependencies: []string{req.Resource},
		},
	}

	switch req.Type {
	case graph.ModuleJSON:
		if !json.Valid(src) {
			result.Diagnostics = append(result.Diagnostics, b.parseError(req, 0, errors.New("invalid JSON")))
		}
		return result, nil
	case graph.ModuleAsset:
		result.Exports = &graph.ExportsInfo{Provided: []string{"default"}}
		return result, nil
	}

	a := b.analyze(src, isTSX(req.Resource))
	for _, imp := range a.Imports {
		dep := graph.NewDependency(imp.Type, imp.Request)
		dep.Names = slices.Clone(imp.Names)
		dep.Weak = imp.Weak
		dep.Line = imp.Line
		result.Dependencies = append(result.Dependencies, dep)
	}
	for _, d := range a.Dynamic {
		dep := graph.NewDependency(graph.TypeDynamicImport, d.Request)
		dep.Names = []string{"*"}
		dep.Line = d.Line
		result.Blocks = append(result.Blocks, pipeline.BlockResult{
			Request:      d.Request,
			GroupOptions: graph.GroupOptions{Name: d.ChunkName},
			Dependencies: []*graph.Dependency{dep},
		})
	}
	if !a.ExportsUnknown {
		result.Exports = &graph.ExportsInfo{Provided: slices.Clone(a.Exports)}
	}
	if a.SyntaxErrorLine > 0 {
		result.Diagnostics = append(result.Diagnostics,
			b.parseError(req, a.SyntaxErrorLine, errors.New("unexpected token")))
	}
	b.logger.Debug("built %s: %d dependencies, %d blocks", req.Resource, len(result.Dependencies), len(result.Blocks))
	return result, nil
}

func (b *Builder) analyze(src []byte, tsx bool) *Analysis {
	key := analysisKey{hash: xxhash.Sum64(src), tsx: tsx}
	if a, ok := b.analyses.Get(key); ok {
		return a
	}
	a := Analyze(src, tsx)
	b.analyses.Add(key, a)
	return a
}

// CachedAnalyses returns the number of cached analyses.
func (b *Builder) CachedAnalyses() int {
	return b.analyses.Len()
}

func (b *Builder) parseError(req pipeline.BuildRequest, line int, err error) diagnostic.Diagnostic {
	d := diagnostic.NewError(diagnostic.ModuleParseError, err)
	d.Module = string(req.Identifier)
	d.File = req.Resource
	d.Line = line
	return d
}
