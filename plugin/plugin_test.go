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

package plugin_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bennypowers.dev/modgraph/graph"
	"bennypowers.dev/modgraph/plugin"
)

func TestNilDriverIsNoop(t *testing.T) {
	var d *plugin.Driver
	ignore, err := d.BeforeResolve(context.Background(), &plugin.ResolveData{Request: "./a.js"})
	if ignore || err != nil {
		t.Errorf("Expected nil driver to pass through, got ignore=%v err=%v", ignore, err)
	}
	d.SucceedModule(&graph.Module{})
	if err := d.FinishModules(context.Background(), graph.NewModuleGraph()); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if d.Plugins() != nil {
		t.Errorf("Expected no plugins")
	}
}

func TestBeforeResolveRewriteAndIgnore(t *testing.T) {
	var seen []string
	d := plugin.NewDriver(
		plugin.Func{PluginName: "rewrite", ApplyFunc: func(d *plugin.Driver) {
			d.OnBeforeResolve(func(_ context.Context, data *plugin.ResolveData) (bool, error) {
				data.Request = strings.TrimPrefix(data.Request, "virtual:")
				return false, nil
			})
		}},
		plugin.Func{PluginName: "ignore-css", ApplyFunc: func(d *plugin.Driver) {
			d.OnBeforeResolve(func(_ context.Context, data *plugin.ResolveData) (bool, error) {
				seen = append(seen, data.Request)
				return strings.HasSuffix(data.Request, ".css"), nil
			})
		}},
	)

	if got := d.Plugins(); len(got) != 2 || got[0] != "rewrite" {
		t.Fatalf("Unexpected plugin names: %v", got)
	}

	data := &plugin.ResolveData{Request: "virtual:./styles.css"}
	ignore, err := d.BeforeResolve(context.Background(), data)
	if err != nil {
		t.Fatalf("BeforeResolve failed: %v", err)
	}
	if !ignore {
		t.Error("Expected css request to be ignored")
	}
	if data.Request != "./styles.css" {
		t.Errorf("Expected rewritten request, got %q", data.Request)
	}
	if len(seen) != 1 || seen[0] != "./styles.css" {
		t.Errorf("Second hook should see rewritten request, saw %v", seen)
	}
}

func TestHookErrorsAreWrapped(t *testing.T) {
	sentinel := errors.New("nope")
	d := plugin.NewDriver(plugin.Func{PluginName: "fail", ApplyFunc: func(d *plugin.Driver) {
		d.OnAfterResolve(func(context.Context, *plugin.ResolveData) (bool, error) {
			return false, sentinel
		})
		d.OnFinishModules(func(context.Context, *graph.ModuleGraph) error {
			return sentinel
		})
	}})

	if _, err := d.AfterResolve(context.Background(), &plugin.ResolveData{Request: "x"}); !errors.Is(err, sentinel) {
		t.Errorf("Expected wrapped sentinel from AfterResolve, got %v", err)
	}
	if err := d.FinishModules(context.Background(), graph.NewModuleGraph()); !errors.Is(err, sentinel) {
		t.Errorf("Expected wrapped sentinel from FinishModules, got %v", err)
	}
}

func TestModuleHooks(t *testing.T) {
	var succeeded, failed []graph.ModuleIdentifier
	d := plugin.NewDriver(plugin.Func{PluginName: "record", ApplyFunc: func(d *plugin.Driver) {
		d.OnSucceedModule(func(m *graph.Module) { succeeded = append(succeeded, m.Identifier) })
		d.OnFailedModule(func(m *graph.Module) { failed = append(failed, m.Identifier) })
	}})

	d.SucceedModule(&graph.Module{Identifier: "javascript/auto|/a.js"})
	d.FailedModule(&graph.Module{Identifier: "javascript/auto|/b.js"})

	if len(succeeded) != 1 || succeeded[0] != "javascript/auto|/a.js" {
		t.Errorf("Unexpected succeeded: %v", succeeded)
	}
	if len(failed) != 1 || failed[0] != "javascript/auto|/b.js" {
		t.Errorf("Unexpected failed: %v", failed)
	}
}
