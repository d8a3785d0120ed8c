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

// Package plugin dispatches lifecycle hooks at the fixed extension points of
// a module graph build.
//
// Hooks are registered before a build starts. During a build the resolve
// hooks may be called from several goroutines at once, so hook functions
// must not share unsynchronized state.
package plugin

import (
	"context"
	"fmt"

	"bennypowers.dev/modgraph/graph"
)

// ResolveData describes one resolution request. BeforeResolve hooks may
// rewrite Request; AfterResolve hooks see the resolved Resource.
type ResolveData struct {
	Request  string
	Context  string
	Category graph.Category
	Layer    string
	Issuer   graph.ModuleIdentifier

	// Resource is the resolved path, set before AfterResolve runs.
	Resource string
}

// BeforeResolveHook runs before a dependency is resolved. Returning ignore
// true drops the dependency without a module.
type BeforeResolveHook func(ctx context.Context, data *ResolveData) (ignore bool, err error)

// AfterResolveHook runs once a dependency resolved to a resource.
type AfterResolveHook func(ctx context.Context, data *ResolveData) (ignore bool, err error)

// ModuleHook observes a module after its build.
type ModuleHook func(m *graph.Module)

// FinishModulesHook runs once per pass after the graph reached a fixed point.
type FinishModulesHook func(ctx context.Context, mg *graph.ModuleGraph) error

// Plugin registers hooks on a Driver.
type Plugin interface {
	Name() string
	Apply(d *Driver)
}

// Driver holds the registered hooks. The zero value has no hooks; a nil
// *Driver is also valid and dispatches nothing.
type Driver struct {
	names         []string
	beforeResolve []BeforeResolveHook
	afterResolve  []AfterResolveHook
	succeedModule []ModuleHook
	failedModule  []ModuleHook
	finishModules []FinishModulesHook
}

// NewDriver creates a driver and applies plugins in order.
func NewDriver(plugins ...Plugin) *Driver {
	d := &Driver{}
	for _, p := range plugins {
		d.names = append(d.names, p.Name())
		p.Apply(d)
	}
	return d
}

// Plugins returns the names of the applied plugins.
func (d *Driver) Plugins() []string {
	if d == nil {
		return nil
	}
	return d.names
}

func (d *Driver) OnBeforeResolve(h BeforeResolveHook) { d.beforeResolve = append(d.beforeResolve, h) }

func (d *Driver) OnAfterResolve(h AfterResolveHook) { d.afterResolve = append(d.afterResolve, h) }

func (d *Driver) OnSucceedModule(h ModuleHook) { d.succeedModule = append(d.succeedModule, h) }

func (d *Driver) OnFailedModule(h ModuleHook) { d.failedModule = append(d.failedModule, h) }

func (d *Driver) OnFinishModules(h FinishModulesHook) { d.finishModules = append(d.finishModules, h) }

// BeforeResolve runs the before-resolve hooks in registration order,
// stopping at the first hook that ignores the request or fails.
func (d *Driver) BeforeResolve(ctx context.Context, data *ResolveData) (bool, error) {
	if d == nil {
		return false, nil
	}
	for _, h := range d.beforeResolve {
		ignore, err := h(ctx, data)
		if err != nil {
			return false, fmt.Errorf("before resolve %q: %w", data.Request, err)
		}
		if ignore {
			return true, nil
		}
	}
	return false, nil
}

// AfterResolve runs the after-resolve hooks in registration order.
func (d *Driver) AfterResolve(ctx context.Context, data *ResolveData) (bool, error) {
	if d == nil {
		return false, nil
	}
	for _, h := range d.afterResolve {
		ignore, err := h(ctx, data)
		if err != nil {
			return false, fmt.Errorf("after resolve %q: %w", data.Request, err)
		}
		if ignore {
			return true, nil
		}
	}
	return false, nil
}

// SucceedModule notifies hooks that m built without errors.
func (d *Driver) SucceedModule(m *graph.Module) {
	if d == nil {
		return
	}
	for _, h := range d.succeedModule {
		h(m)
	}
}

// FailedModule notifies hooks that m failed to build.
func (d *Driver) FailedModule(m *graph.Module) {
	if d == nil {
		return
	}
	for _, h := range d.failedModule {
		h(m)
	}
}

// FinishModules runs every finish hook; the first error stops the chain.
func (d *Driver) FinishModules(ctx context.Context, mg *graph.ModuleGraph) error {
	if d == nil {
		return nil
	}
	for _, h := range d.finishModules {
		if err := h(ctx, mg); err != nil {
			return fmt.Errorf("finish modules: %w", err)
		}
	}
	return nil
}

// Func adapts a function into a Plugin.
type Func struct {
	PluginName string
	ApplyFunc  func(d *Driver)
}

func (f Func) Name() string { return f.PluginName }

func (f Func) Apply(d *Driver) { f.ApplyFunc(d) }
