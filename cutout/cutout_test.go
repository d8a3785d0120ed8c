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

package cutout_test

import (
	"context"
	"slices"
	"testing"

	"bennypowers.dev/modgraph/artifact"
	"bennypowers.dev/modgraph/cutout"
	"bennypowers.dev/modgraph/graph"
	"bennypowers.dev/modgraph/pipeline"
	"bennypowers.dev/modgraph/testutil"
)

func jsID(resource string) graph.ModuleIdentifier {
	return graph.NewModuleIdentifier(graph.ModuleJavaScript, resource, "")
}

type harness struct {
	t       *testing.T
	factory *testutil.FakeFactory
	builder *testutil.FakeBuilder
	ctx     *pipeline.Context
	cut     *cutout.Cutout
}

func newHarness(t *testing.T, sources map[string]testutil.FakeSource) *harness {
	t.Helper()
	modules := make(map[string]string)
	for res := range sources {
		modules["."+res[len("/src"):]] = res
	}
	f := &testutil.FakeFactory{Modules: modules}
	b := testutil.NewFakeBuilder(sources)
	return &harness{
		t:       t,
		factory: f,
		builder: b,
		ctx: &pipeline.Context{
			Artifact: artifact.New(),
			Factory:  f,
			Builder:  b,
			Options:  pipeline.Options{Context: "/src"},
		},
		cut: cutout.New(),
	}
}

// pass runs one cut, repair and fix cycle and reports the change flag.
func (h *harness) pass(p cutout.Params) bool {
	h.t.Helper()
	art := h.ctx.Artifact
	art.ResetTemporaryData()
	seeds := h.cut.CutArtifact(art, p)
	if _, err := pipeline.Repair(context.Background(), h.ctx, seeds); err != nil {
		h.t.Fatalf("Repair failed: %v", err)
	}
	h.cut.FixArtifact(art)
	return art.HasModuleGraphChange
}

func (h *harness) build(entries ...string) bool {
	h.t.Helper()
	var ids []graph.DependencyID
	for _, e := range entries {
		dep := graph.NewEntryDependency(e, "")
		h.ctx.Artifact.AddEntryDependency(dep)
		ids = append(ids, dep.ID)
	}
	return h.pass(cutout.Params{EntryDependencies: ids})
}

func (h *harness) modules() []graph.ModuleIdentifier {
	return h.ctx.Artifact.ModuleGraph.Modules()
}

func diamondSources() map[string]testutil.FakeSource {
	return map[string]testutil.FakeSource{
		"/src/a.js": {Imports: []string{"./b.js:foo", "./c.js:bar"}},
		"/src/b.js": {Imports: []string{"./c.js:bar"}, Exports: []string{"foo"}},
		"/src/c.js": {Exports: []string{"bar"}},
	}
}

func TestColdBuildAssumesChange(t *testing.T) {
	h := newHarness(t, diamondSources())
	if !h.build("./a.js") {
		t.Error("Expected a cold build to report a change")
	}
	if got := len(h.modules()); got != 3 {
		t.Errorf("Expected 3 modules, got %d", got)
	}
}

func TestNoopPassReportsNoChange(t *testing.T) {
	h := newHarness(t, diamondSources())
	h.build("./a.js")
	before := h.modules()

	if h.pass(cutout.Params{}) {
		t.Error("Expected no change without changed files")
	}
	if got := h.modules(); !slices.Equal(got, before) {
		t.Errorf("Expected unchanged graph, got %v", got)
	}
	if got := h.builder.Builds("/src/a.js"); got != 1 {
		t.Errorf("Expected nothing to rebuild, a built %d times", got)
	}
}

func TestBodyEditReportsNoChange(t *testing.T) {
	h := newHarness(t, diamondSources())
	h.build("./a.js")

	if h.pass(cutout.Params{ModifiedFiles: []string{"/src/b.js"}}) {
		t.Error("Editing a module body must not report a change")
	}
	if got := h.builder.Builds("/src/b.js"); got != 2 {
		t.Errorf("Expected b to be rebuilt, built %d times", got)
	}
	if got := h.builder.Builds("/src/a.js"); got != 1 {
		t.Errorf("Expected a to be left alone, built %d times", got)
	}
	if got := len(h.modules()); got != 3 {
		t.Errorf("Expected 3 modules, got %d", got)
	}
}

func TestImportChangesReportChange(t *testing.T) {
	tests := []struct {
		name   string
		source testutil.FakeSource
	}{
		{"add import", testutil.FakeSource{Imports: []string{"./b.js:foo", "./c.js:bar", "./d.js"}}},
		{"remove import", testutil.FakeSource{Imports: []string{"./b.js:foo"}}},
		{"rename import", testutil.FakeSource{Imports: []string{"./b.js:baz", "./c.js:bar"}}},
		{"add dynamic import", testutil.FakeSource{Imports: []string{"./b.js:foo", "./c.js:bar"}, Dynamic: []string{"./d.js"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sources := diamondSources()
			sources["/src/d.js"] = testutil.FakeSource{}
			h := newHarness(t, sources)
			h.build("./a.js")

			h.builder.SetSource("/src/a.js", tt.source)
			if !h.pass(cutout.Params{ModifiedFiles: []string{"/src/a.js"}}) {
				t.Error("Expected a change")
			}
		})
	}
}

func TestWeakImportChangesReportNoChange(t *testing.T) {
	sources := diamondSources()
	sources["/src/a.js"] = testutil.FakeSource{Imports: []string{"type ./b.js:Foo", "./c.js:bar"}}
	h := newHarness(t, sources)
	h.build("./a.js")

	h.builder.SetSource("/src/a.js", testutil.FakeSource{Imports: []string{"type ./b.js:Bar", "./c.js:bar"}})
	if h.pass(cutout.Params{ModifiedFiles: []string{"/src/a.js"}}) {
		t.Error("Type-only imports must not count as graph shape")
	}
}

func TestRemovedImportRepairsIssuer(t *testing.T) {
	h := newHarness(t, diamondSources())
	h.build("./a.js")

	h.builder.SetSource("/src/a.js", testutil.FakeSource{Imports: []string{"./b.js:foo"}})
	h.pass(cutout.Params{ModifiedFiles: []string{"/src/a.js"}})

	mg := h.ctx.Artifact.ModuleGraph
	issuer, ok := mg.MustModuleGraphModule(jsID("/src/c.js")).Issuer().Module()
	if !ok || issuer != jsID("/src/b.js") {
		t.Errorf("Expected c's issuer to become b, got %q", issuer)
	}
	if len(h.ctx.Artifact.IssuerUpdateModules()) != 0 {
		t.Error("Expected the issuer-update set to be drained")
	}
}

func TestIsolatedModulesAreRemoved(t *testing.T) {
	h := newHarness(t, map[string]testutil.FakeSource{
		"/src/a.js": {Imports: []string{"./b.js:foo"}},
		"/src/b.js": {Imports: []string{"./c.js:bar"}},
		"/src/c.js": {Imports: []string{"./b.js:foo"}},
	})
	h.build("./a.js")

	h.builder.SetSource("/src/a.js", testutil.FakeSource{})
	if !h.pass(cutout.Params{ModifiedFiles: []string{"/src/a.js"}}) {
		t.Error("Expected a change")
	}
	want := []graph.ModuleIdentifier{jsID("/src/a.js")}
	if got := h.modules(); !slices.Equal(got, want) {
		t.Errorf("Expected only a to remain, got %v", got)
	}
	art := h.ctx.Artifact
	if art.FileDependencies.Contains("/src/b.js") || art.FileDependencies.Contains("/src/c.js") {
		t.Errorf("Removed modules must not keep watched files: %v", art.FileDependencies.Files())
	}
	if got := art.ModuleGraph.DependencyCount(); got != 1 {
		t.Errorf("Expected only the entry dependency to remain, got %d", got)
	}
}

func TestRemovedFileFailsDependency(t *testing.T) {
	h := newHarness(t, diamondSources())
	h.build("./a.js")

	delete(h.factory.Modules, "./b.js")
	if !h.pass(cutout.Params{RemovedFiles: []string{"/src/b.js"}}) {
		t.Error("Expected a change")
	}
	art := h.ctx.Artifact
	if art.ModuleGraph.HasModule(jsID("/src/b.js")) {
		t.Error("Expected b to be removed")
	}
	if !art.ModuleGraph.HasModule(jsID("/src/c.js")) {
		t.Error("Expected c to stay, a still imports it")
	}
	failed := art.FailedDependencies()
	if len(failed) != 1 || art.ModuleGraph.MustDependency(failed[0]).Request != "./b.js" {
		t.Errorf("Expected ./b.js to fail, got %v", failed)
	}
}

func TestFailedDependenciesAreRetried(t *testing.T) {
	sources := diamondSources()
	sources["/src/a.js"] = testutil.FakeSource{Imports: []string{"./later.js"}}
	h := newHarness(t, sources)
	h.build("./a.js")
	if len(h.ctx.Artifact.FailedDependencies()) != 1 {
		t.Fatal("Expected ./later.js to fail")
	}

	h.factory.Modules["./later.js"] = "/src/later.js"
	h.builder.SetSource("/src/later.js", testutil.FakeSource{})
	if !h.pass(cutout.Params{}) {
		t.Error("Expected resolving a failed dependency to report a change")
	}
	if len(h.ctx.Artifact.FailedDependencies()) != 0 {
		t.Error("Expected the failure to clear")
	}
	if !h.ctx.Artifact.ModuleGraph.HasModule(jsID("/src/later.js")) {
		t.Error("Expected later.js to be built")
	}
}

func TestMissingFileCreationRetriesDependency(t *testing.T) {
	sources := diamondSources()
	sources["/src/a.js"] = testutil.FakeSource{Imports: []string{"./later.js"}}
	h := newHarness(t, sources)
	h.build("./a.js")
	if !h.ctx.Artifact.MissingDependencies.Contains("/src/later.js") {
		t.Fatal("Expected the missing path to be watched")
	}

	h.factory.Modules["./later.js"] = "/src/later.js"
	h.builder.SetSource("/src/later.js", testutil.FakeSource{})
	h.pass(cutout.Params{ModifiedFiles: []string{"/src/later.js"}})

	art := h.ctx.Artifact
	if art.MissingDependencies.Contains("/src/later.js") {
		t.Error("Expected the missing path to be released")
	}
	if !art.FileDependencies.Contains("/src/later.js") {
		t.Error("Expected the resolved file to be watched")
	}
}

func TestNewEntryReportsChange(t *testing.T) {
	sources := diamondSources()
	sources["/src/other.js"] = testutil.FakeSource{}
	h := newHarness(t, sources)
	h.build("./a.js")

	if !h.build("./other.js") {
		t.Error("Expected a new entry to report a change")
	}
	if !h.ctx.Artifact.ModuleGraph.HasModule(jsID("/src/other.js")) {
		t.Error("Expected the new entry to be built")
	}
}
