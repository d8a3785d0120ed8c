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

package loader_test

import (
	"context"
	"slices"
	"testing"

	"bennypowers.dev/modgraph/diagnostic"
	"bennypowers.dev/modgraph/graph"
	"bennypowers.dev/modgraph/internal/mapfs"
	"bennypowers.dev/modgraph/loader"
	"bennypowers.dev/modgraph/pipeline"
)

func requests(imports []loader.Import) []string {
	var out []string
	for _, imp := range imports {
		out = append(out, imp.Request)
	}
	return out
}

func findImport(t *testing.T, a *loader.Analysis, request string) loader.Import {
	t.Helper()
	for _, imp := range a.Imports {
		if imp.Request == request {
			return imp
		}
	}
	t.Fatalf("No import of %q in %v", request, requests(a.Imports))
	return loader.Import{}
}

func TestAnalyzeImports(t *testing.T) {
	src := `import def from "./default.js";
import * as ns from "./namespace.js";
import { a, b as c } from './named.js';
import "./side-effect.js";
import type { T } from "./types.js";
const x = require("./cjs.js");
`
	a := loader.Analyze([]byte(src), false)

	want := []string{"./default.js", "./namespace.js", "./named.js", "./side-effect.js", "./types.js", "./cjs.js"}
	if got := requests(a.Imports); !slices.Equal(got, want) {
		t.Fatalf("Imports = %v, want %v", got, want)
	}

	if got := findImport(t, a, "./default.js").Names; !slices.Equal(got, []string{"default"}) {
		t.Errorf("Expected default import, got %v", got)
	}
	if got := findImport(t, a, "./namespace.js").Names; !slices.Equal(got, []string{"*"}) {
		t.Errorf("Expected namespace import, got %v", got)
	}
	if got := findImport(t, a, "./named.js").Names; !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Expected imported names a and b, got %v", got)
	}
	if got := findImport(t, a, "./side-effect.js").Names; len(got) != 0 {
		t.Errorf("Expected no names for a side-effect import, got %v", got)
	}
	if !findImport(t, a, "./types.js").Weak {
		t.Error("Expected the type-only import to be weak")
	}
	if findImport(t, a, "./named.js").Weak {
		t.Error("Value imports must not be weak")
	}
	if imp := findImport(t, a, "./cjs.js"); imp.Type != graph.TypeRequire || imp.Line != 6 {
		t.Errorf("Expected a require on line 6, got %+v", imp)
	}
	if imp := findImport(t, a, "./named.js"); imp.Type != graph.TypeESMImport || imp.Line != 3 {
		t.Errorf("Expected an import on line 3, got %+v", imp)
	}
	if a.SyntaxErrorLine != 0 {
		t.Errorf("Unexpected syntax error on line %d", a.SyntaxErrorLine)
	}
}

func TestAnalyzeExports(t *testing.T) {
	src := `export const one = 1, two = 2;
export function three() {}
export class Four {}
const five = 5;
export { five, five as six };
export default three;
export { seven } from "./seven.js";
export * as eight from "./eight.js";
`
	a := loader.Analyze([]byte(src), false)

	want := []string{"one", "two", "three", "Four", "five", "six", "default", "seven", "eight"}
	if !slices.Equal(a.Exports, want) {
		t.Errorf("Exports = %v, want %v", a.Exports, want)
	}
	if a.ExportsUnknown {
		t.Error("Exports should be known")
	}
	if imp := findImport(t, a, "./seven.js"); imp.Type != graph.TypeESMReexport || !slices.Equal(imp.Names, []string{"seven"}) {
		t.Errorf("Unexpected re-export: %+v", imp)
	}
	if imp := findImport(t, a, "./eight.js"); !slices.Equal(imp.Names, []string{"*"}) {
		t.Errorf("Unexpected namespace re-export: %+v", imp)
	}
}

func TestAnalyzeStarReexport(t *testing.T) {
	a := loader.Analyze([]byte(`export * from "./all.js";`), false)
	if !a.ExportsUnknown {
		t.Error("A star re-export makes exports unknown")
	}
	findImport(t, a, "./all.js")
}

func TestAnalyzeDynamicImports(t *testing.T) {
	src := `const a = () => import("./lazy.js");
const b = () => import(/* webpackChunkName: "admin" */ "./admin.js");
const c = (name) => import(` + "`./locales/${name}.js`" + `);
`
	a := loader.Analyze([]byte(src), false)
	if len(a.Imports) != 0 {
		t.Errorf("Dynamic imports are not static imports: %v", requests(a.Imports))
	}
	if len(a.Dynamic) != 2 {
		t.Fatalf("Expected 2 dynamic imports, got %+v", a.Dynamic)
	}
	if a.Dynamic[0].Request != "./lazy.js" || a.Dynamic[0].ChunkName != "" || a.Dynamic[0].Line != 1 {
		t.Errorf("Unexpected dynamic import: %+v", a.Dynamic[0])
	}
	if a.Dynamic[1].Request != "./admin.js" || a.Dynamic[1].ChunkName != "admin" {
		t.Errorf("Expected the chunk name, got %+v", a.Dynamic[1])
	}
}

func TestAnalyzeSyntaxError(t *testing.T) {
	a := loader.Analyze([]byte("import { a } from './a.js';\nconst = ;\n"), false)
	if a.SyntaxErrorLine == 0 {
		t.Error("Expected a syntax error")
	}
	findImport(t, a, "./a.js")
}

func TestAnalyzeJSX(t *testing.T) {
	src := `import { h } from "./h.js";
export const App = () => <div className="app">hi</div>;
`
	a := loader.Analyze([]byte(src), true)
	if a.SyntaxErrorLine != 0 {
		t.Errorf("Unexpected syntax error on line %d", a.SyntaxErrorLine)
	}
	findImport(t, a, "./h.js")
	if !slices.Equal(a.Exports, []string{"App"}) {
		t.Errorf("Exports = %v", a.Exports)
	}
}

func newBuilder(t *testing.T, files map[string]string) (*loader.Builder, *mapfs.MapFileSystem) {
	t.Helper()
	mfs := mapfs.New()
	mfs.AddFiles(files)
	b, err := loader.New(mfs, 16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b, mfs
}

func buildRequest(typ graph.ModuleType, resource string) pipeline.BuildRequest {
	return pipeline.BuildRequest{
		Identifier: graph.NewModuleIdentifier(typ, resource, ""),
		Type:       typ,
		Resource:   resource,
		Context:    "/src",
	}
}

func TestBuild(t *testing.T) {
	b, _ := newBuilder(t, map[string]string{
		"/src/a.js": `import { b } from "./b.js";
export const a = () => import(/* webpackChunkName: "c" */ "./c.js");
`,
	})

	res, err := b.Build(context.Background(), buildRequest(graph.ModuleJavaScript, "/src/a.js"))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(res.Dependencies) != 1 || res.Dependencies[0].Request != "./b.js" || res.Dependencies[0].Line != 1 {
		t.Errorf("Unexpected dependencies: %+v", res.Dependencies)
	}
	if len(res.Blocks) != 1 || res.Blocks[0].GroupOptions.Name != "c" || res.Blocks[0].Dependencies[0].Type != graph.TypeDynamicImport {
		t.Errorf("Unexpected blocks: %+v", res.Blocks)
	}
	if res.Exports == nil || !slices.Equal(res.Exports.Provided, []string{"a"}) {
		t.Errorf("Unexpected exports: %+v", res.Exports)
	}
	if !res.BuildInfo.Cacheable || res.BuildInfo.Hash == "" || !slices.Equal(res.BuildInfo.FileDependencies, []string{"/src/a.js"}) {
		t.Errorf("Unexpected build info: %+v", res.BuildInfo)
	}
	if res.Failed() {
		t.Errorf("Unexpected diagnostics: %v", res.Diagnostics)
	}
}

func TestBuildFreshDependenciesFromCache(t *testing.T) {
	b, _ := newBuilder(t, map[string]string{"/src/a.js": `import "./b.js";`})
	req := buildRequest(graph.ModuleJavaScript, "/src/a.js")

	first, err := b.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	second, err := b.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if b.CachedAnalyses() != 1 {
		t.Errorf("Expected one cached analysis, got %d", b.CachedAnalyses())
	}
	if first.Dependencies[0].ID == second.Dependencies[0].ID {
		t.Error("Each build must allocate fresh dependency ids")
	}
	if first.BuildInfo.Hash != second.BuildInfo.Hash {
		t.Error("Same content must fingerprint the same")
	}
}

func TestBuildHashFollowsContent(t *testing.T) {
	b, mfs := newBuilder(t, map[string]string{"/src/a.js": `export const a = 1;`})
	req := buildRequest(graph.ModuleJavaScript, "/src/a.js")

	first, _ := b.Build(context.Background(), req)
	if err := mfs.EditFile("/src/a.js", `export const a = 2;`); err != nil {
		t.Fatal(err)
	}
	second, _ := b.Build(context.Background(), req)
	if first.BuildInfo.Hash == second.BuildInfo.Hash {
		t.Error("Expected the fingerprint to change with the content")
	}
}

func TestBuildParseError(t *testing.T) {
	b, _ := newBuilder(t, map[string]string{
		"/src/bad.js":   "const = ;",
		"/src/bad.json": `{"a":`,
	})

	for _, req := range []pipeline.BuildRequest{
		buildRequest(graph.ModuleJavaScript, "/src/bad.js"),
		buildRequest(graph.ModuleJSON, "/src/bad.json"),
	} {
		res, err := b.Build(context.Background(), req)
		if err != nil {
			t.Fatalf("Build(%s) failed: %v", req.Resource, err)
		}
		if !res.Failed() {
			t.Fatalf("Expected %s to fail", req.Resource)
		}
		d := res.Diagnostics[0]
		if d.Kind != diagnostic.ModuleParseError || d.File != req.Resource || d.Module != string(req.Identifier) {
			t.Errorf("Unexpected diagnostic: %+v", d)
		}
	}
}

func TestBuildJSONAndAssets(t *testing.T) {
	b, _ := newBuilder(t, map[string]string{
		"/src/data.json": `{"a": 1}`,
		"/src/logo.svg":  `<svg/>`,
	})

	res, err := b.Build(context.Background(), buildRequest(graph.ModuleJSON, "/src/data.json"))
	if err != nil || res.Failed() || len(res.Dependencies) != 0 || res.Exports != nil {
		t.Errorf("Unexpected JSON build: %+v, %v", res, err)
	}
	res, err = b.Build(context.Background(), buildRequest(graph.ModuleAsset, "/src/logo.svg"))
	if err != nil || res.Exports == nil || !slices.Equal(res.Exports.Provided, []string{"default"}) {
		t.Errorf("Unexpected asset build: %+v, %v", res, err)
	}
}

func TestBuildMissingFile(t *testing.T) {
	b, _ := newBuilder(t, map[string]string{"/src/a.js": ``})
	if _, err := b.Build(context.Background(), buildRequest(graph.ModuleJavaScript, "/src/gone.js")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestBuildCancelled(t *testing.T) {
	b, _ := newBuilder(t, map[string]string{"/src/a.js": ``})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Build(ctx, buildRequest(graph.ModuleJavaScript, "/src/a.js")); err == nil {
		t.Error("Expected the context error")
	}
}
