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

package packagejson_test

import (
	"errors"
	"testing"

	"bennypowers.dev/modgraph/internal/mapfs"
	"bennypowers.dev/modgraph/packagejson"
)

func mustParse(t *testing.T, data string) *packagejson.PackageJSON {
	t.Helper()
	pkg, err := packagejson.Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return pkg
}

func TestParseFile(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddFile("/test/package.json", `{"name": "pkg", "version": "1.0.0", "type": "module"}`, 0644)

	pkg, err := packagejson.ParseFile(mfs, "/test/package.json")
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if pkg.Name != "pkg" || pkg.Version != "1.0.0" {
		t.Errorf("Unexpected package: %+v", pkg)
	}
	if !pkg.IsModule() {
		t.Error("Expected type module")
	}

	if _, err := packagejson.ParseFile(mfs, "/missing/package.json"); err == nil {
		t.Error("Expected error for missing file")
	}
	mfs.AddFile("/bad/package.json", `{"name":`, 0644)
	if _, err := packagejson.ParseFile(mfs, "/bad/package.json"); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestResolveExport(t *testing.T) {
	tests := []struct {
		name       string
		pkg        string
		subpath    string
		conditions []string
		want       string
		wantErr    bool
	}{
		{
			name:    "string exports",
			pkg:     `{"exports": "./index.js"}`,
			subpath: ".",
			want:    "index.js",
		},
		{
			name:    "string exports rejects subpaths",
			pkg:     `{"exports": "./index.js"}`,
			subpath: "./other",
			wantErr: true,
		},
		{
			name:    "subpath exports",
			pkg:     `{"exports": {".": "./index.js", "./button": "./src/button.js"}}`,
			subpath: "./button",
			want:    "src/button.js",
		},
		{
			name:    "unexported subpath",
			pkg:     `{"exports": {".": "./index.js"}}`,
			subpath: "./internal",
			wantErr: true,
		},
		{
			name:    "condition-only exports",
			pkg:     `{"exports": {"import": "./esm.js", "require": "./cjs.js"}}`,
			subpath: ".",
			want:    "esm.js",
		},
		{
			name:       "require condition",
			pkg:        `{"exports": {"import": "./esm.js", "require": "./cjs.js"}}`,
			subpath:    ".",
			conditions: packagejson.CommonJSConditions,
			want:       "cjs.js",
		},
		{
			name:    "nested conditions",
			pkg:     `{"exports": {".": {"browser": {"import": "./browser.mjs"}, "default": "./node.js"}}}`,
			subpath: ".",
			want:    "browser.mjs",
		},
		{
			name:       "default is always tried",
			pkg:        `{"exports": {".": {"node": "./node.js", "default": "./fallback.js"}}}`,
			subpath:    ".",
			conditions: []string{"import"},
			want:       "fallback.js",
		},
		{
			name:    "fallback array",
			pkg:     `{"exports": {".": [{"worker": "./worker.js"}, "./index.js"]}}`,
			subpath: ".",
			want:    "index.js",
		},
		{
			name:    "wildcard",
			pkg:     `{"exports": {"./*": "./dist/*.js"}}`,
			subpath: "./utils/math",
			want:    "dist/utils/math.js",
		},
		{
			name:    "longest wildcard prefix wins",
			pkg:     `{"exports": {"./*": "./dist/*", "./features/*.js": "./src/features/*.js"}}`,
			subpath: "./features/x.js",
			want:    "src/features/x.js",
		},
		{
			name:    "null excludes a wildcard match",
			pkg:     `{"exports": {"./*": "./dist/*.js", "./private/*": null}}`,
			subpath: "./private/x",
			wantErr: true,
		},
		{
			name:    "main fallback",
			pkg:     `{"main": "./lib/index.js"}`,
			subpath: ".",
			want:    "lib/index.js",
		},
		{
			name:    "no entry",
			pkg:     `{"name": "empty"}`,
			subpath: ".",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg := mustParse(t, tt.pkg)
			got, err := pkg.ResolveExport(tt.subpath, tt.conditions)
			if tt.wantErr {
				if !errors.Is(err, packagejson.ErrNotExported) {
					t.Errorf("Expected ErrNotExported, got %q, %v", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveExport failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveExport(%q) = %q, want %q", tt.subpath, got, tt.want)
			}
		})
	}
}

func TestResolveImport(t *testing.T) {
	pkg := mustParse(t, `{"imports": {"#internal/*": "./src/internal/*.js", "#dep": {"browser": "./shim.js", "default": "dep"}}}`)

	got, err := pkg.ResolveImport("#internal/a", nil)
	if err != nil || got != "./src/internal/a.js" {
		t.Errorf("Expected ./src/internal/a.js, got %q, %v", got, err)
	}
	got, err = pkg.ResolveImport("#dep", nil)
	if err != nil || got != "./shim.js" {
		t.Errorf("Expected ./shim.js, got %q, %v", got, err)
	}
	if _, err := pkg.ResolveImport("#missing", nil); !errors.Is(err, packagejson.ErrNotExported) {
		t.Errorf("Expected ErrNotExported, got %v", err)
	}
	if _, err := pkg.ResolveImport("internal", nil); !errors.Is(err, packagejson.ErrNotExported) {
		t.Errorf("Expected ErrNotExported for non-# specifier, got %v", err)
	}
	if got, _ := pkg.ResolveImport("#dep", []string{"node"}); got != "dep" {
		t.Errorf("Expected the bare package target, got %q", got)
	}
}

func TestMainEntry(t *testing.T) {
	pkg := mustParse(t, `{"main": "./cjs.js", "module": "./esm.js", "browser": "./browser.js"}`)
	if got, _ := pkg.MainEntry(nil); got != "browser.js" {
		t.Errorf("Expected browser.js first, got %q", got)
	}
	if got, _ := pkg.MainEntry([]string{"module", "main"}); got != "esm.js" {
		t.Errorf("Expected esm.js, got %q", got)
	}

	mapped := mustParse(t, `{"main": "./cjs.js", "browser": {"./cjs.js": "./browser.js"}}`)
	if got, _ := mapped.MainEntry(nil); got != "cjs.js" {
		t.Errorf("A browser map is not an entry point, got %q", got)
	}
	if _, ok := mustParse(t, `{}`).MainEntry(nil); ok {
		t.Error("Expected no entry point")
	}
}

func TestBrowserReplacement(t *testing.T) {
	pkg := mustParse(t, `{"browser": {"./lib/node.js": "./lib/browser.js", "fs": false, "lib/other.js": "./lib/other-browser.js"}}`)

	tests := []struct {
		key         string
		replacement string
		ignored     bool
		ok          bool
	}{
		{"./lib/node.js", "./lib/browser.js", false, true},
		{"./lib/other.js", "./lib/other-browser.js", false, true},
		{"fs", "", true, true},
		{"path", "", false, false},
	}
	for _, tt := range tests {
		replacement, ignored, ok := pkg.BrowserReplacement(tt.key)
		if replacement != tt.replacement || ignored != tt.ignored || ok != tt.ok {
			t.Errorf("BrowserReplacement(%q) = (%q, %v, %v), want (%q, %v, %v)",
				tt.key, replacement, ignored, ok, tt.replacement, tt.ignored, tt.ok)
		}
	}

	if _, _, ok := mustParse(t, `{"browser": "./b.js"}`).BrowserReplacement("fs"); ok {
		t.Error("A browser string has no replacements")
	}
}

func TestHasSideEffects(t *testing.T) {
	if !mustParse(t, `{}`).HasSideEffects("index.js") {
		t.Error("Packages have side effects by default")
	}
	if mustParse(t, `{"sideEffects": false}`).HasSideEffects("index.js") {
		t.Error("Expected no side effects")
	}
	listed := mustParse(t, `{"sideEffects": ["./polyfill.js"]}`)
	if !listed.HasSideEffects("polyfill.js") || listed.HasSideEffects("index.js") {
		t.Error("Expected only polyfill.js to have side effects")
	}
}

func TestWorkspacePatterns(t *testing.T) {
	if got := mustParse(t, `{"workspaces": ["packages/*", "tools/cli"]}`).WorkspacePatterns(); len(got) != 2 || got[0] != "packages/*" {
		t.Errorf("Unexpected patterns: %v", got)
	}
	if got := mustParse(t, `{"workspaces": {"packages": ["libs/*"]}}`).WorkspacePatterns(); len(got) != 1 || got[0] != "libs/*" {
		t.Errorf("Unexpected patterns: %v", got)
	}
	if got := mustParse(t, `{}`).WorkspacePatterns(); got != nil {
		t.Errorf("Expected no patterns, got %v", got)
	}
}
