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

// Package factory turns dependencies into candidate modules by resolving
// their request and choosing a module type for the resolved file.
package factory

import (
	"context"
	"path/filepath"
	"strings"

	"bennypowers.dev/modgraph/graph"
	"bennypowers.dev/modgraph/internal/logging"
	"bennypowers.dev/modgraph/pipeline"
	"bennypowers.dev/modgraph/plugin"
	"bennypowers.dev/modgraph/resolve"
)

// NormalModuleFactory creates modules for file requests. Node builtins that
// do not resolve to a file and configured externals are ignored, leaving
// them to the runtime.
type NormalModuleFactory struct {
	resolver  *resolve.Factory
	plugins   *plugin.Driver
	externals map[string]bool
	logger    logging.Logger
}

var _ pipeline.ModuleFactory = (*NormalModuleFactory)(nil)

// New creates a factory resolving through resolver.
func New(resolver *resolve.Factory) *NormalModuleFactory {
	return &NormalModuleFactory{
		resolver: resolver,
		logger:   logging.Nop(),
	}
}

// WithPlugins returns a factory that dispatches resolve hooks to d.
func (f *NormalModuleFactory) WithPlugins(d *plugin.Driver) *NormalModuleFactory {
	c := *f
	c.plugins = d
	return &c
}

// WithExternals returns a factory that ignores the given requests.
func (f *NormalModuleFactory) WithExternals(externals []string) *NormalModuleFactory {
	c := *f
	c.externals = make(map[string]bool, len(externals))
	for _, e := range externals {
		c.externals[e] = true
	}
	return &c
}

// WithLogger returns a factory logging to logger.
func (f *NormalModuleFactory) WithLogger(logger logging.Logger) *NormalModuleFactory {
	c := *f
	c.logger = logging.OrNop(logger)
	return &c
}

// Create implements pipeline.ModuleFactory.
func (f *NormalModuleFactory) Create(ctx context.Context, data *pipeline.FactorizeData) (*graph.Module, error) {
	rd := &plugin.ResolveData{
		Request:  data.Request(),
		Context:  data.Context,
		Category: data.Category(),
		Layer:    data.Layer,
		Issuer:   data.Issuer,
	}
	ignore, err := f.plugins.BeforeResolve(ctx, rd)
	if err != nil {
		return nil, err
	}
	if ignore || f.externals[rd.Request] {
		f.logger.Debug("ignoring %q", rd.Request)
		return nil, nil
	}

	res, err := f.resolver.Resolve(resolve.Request{
		Request:  rd.Request,
		Context:  rd.Context,
		Category: rd.Category,
		Options:  data.ResolveOptions,
	})
	data.FileDependencies = append(data.FileDependencies, res.FileDependencies...)
	data.ContextDependencies = append(data.ContextDependencies, res.ContextDependencies...)
	data.MissingDependencies = append(data.MissingDependencies, res.MissingDependencies...)
	if err != nil {
		if IsNodeBuiltin(rd.Request) {
			f.logger.Debug("ignoring node builtin %q", rd.Request)
			return nil, nil
		}
		return nil, err
	}
	if res.Ignored {
		return nil, nil
	}

	rd.Resource = res.Path
	ignore, err = f.plugins.AfterResolve(ctx, rd)
	if err != nil {
		return nil, err
	}
	if ignore {
		return nil, nil
	}

	typ := ModuleType(rd.Resource)
	return &graph.Module{
		Identifier: graph.NewModuleIdentifier(typ, rd.Resource, data.Layer),
		Type:       typ,
		Resource:   rd.Resource,
		RawRequest: data.Request(),
		Layer:      data.Layer,
		Context:    filepath.Dir(rd.Resource),
	}, nil
}

// ModuleType picks the module type for a resolved file by extension.
func ModuleType(resource string) graph.ModuleType {
	switch strings.ToLower(filepath.Ext(resource)) {
	case ".js", ".mjs", ".cjs", ".jsx", ".ts", ".mts", ".cts", ".tsx":
		return graph.ModuleJavaScript
	case ".json":
		return graph.ModuleJSON
	default:
		return graph.ModuleAsset
	}
}
