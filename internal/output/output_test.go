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

package output_test

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"bennypowers.dev/modgraph/compiler"
	"bennypowers.dev/modgraph/diagnostic"
	"bennypowers.dev/modgraph/entry"
	"bennypowers.dev/modgraph/internal/output"
	"bennypowers.dev/modgraph/testutil"
)

func buildApp(t *testing.T) *compiler.Result {
	t.Helper()
	mfs := testutil.NewFixtureFS(t, "app", "/app")
	c, err := compiler.New(mfs, compiler.Options{
		Context:    "/app",
		Entries:    []entry.Entry{{Name: "main", Request: "./src/a.js"}},
		Workspaces: true,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	res, err := c.Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return res
}

func TestTree(t *testing.T) {
	res := buildApp(t)
	var buf bytes.Buffer
	if err := output.Render(&buf, res, "/app", "text"); err != nil {
		t.Fatal(err)
	}

	golden := "output/app-tree.txt"
	testutil.UpdateGoldenFile(t, golden, buf.Bytes())
	expected := testutil.LoadGoldenFile(t, golden)
	if expected != nil && buf.String() != string(expected) {
		t.Errorf("Tree mismatch.\nExpected:\n%s\nGot:\n%s", expected, buf.String())
	}
}

func TestJSON(t *testing.T) {
	res := buildApp(t)
	var buf bytes.Buffer
	if err := output.Render(&buf, res, "/app", "json"); err != nil {
		t.Fatal(err)
	}

	var report output.Report
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("Invalid JSON: %v\n%s", err, buf.String())
	}
	if len(report.Entries) != 1 || report.Entries[0].Module != "src/a.js" {
		t.Errorf("Unexpected entries: %+v", report.Entries)
	}
	if len(report.Modules) != 5 {
		t.Fatalf("Expected 5 modules, got %d", len(report.Modules))
	}
	first := report.Modules[0]
	if first.Resource != "src/a.js" || first.Depth != 0 || first.Issuer != "" {
		t.Errorf("Expected the entry module first, got %+v", first)
	}
	wantImports := []string{"src/b.js", "node_modules/lit/index.js", "packages/util/index.js"}
	if !slices.Equal(first.Imports, wantImports) {
		t.Errorf("Imports = %v, want %v", first.Imports, wantImports)
	}
	if !slices.Equal(first.Async, []string{"src/lazy.js"}) {
		t.Errorf("Async = %v", first.Async)
	}
	for _, m := range report.Modules[1:] {
		if m.Issuer != "src/a.js" || m.Depth != 1 {
			t.Errorf("Expected %s issued by the entry at depth 1, got %+v", m.Resource, m)
		}
	}
	if !report.Changed {
		t.Error("Expected a cold build to report a change")
	}
}

func TestRenderInvalidFormat(t *testing.T) {
	if err := output.Render(&bytes.Buffer{}, &compiler.Result{}, "/", "yaml"); err == nil {
		t.Error("Expected an invalid format error")
	}
	if err := output.ValidateFormat("json"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestDiagnostics(t *testing.T) {
	diags := []diagnostic.Diagnostic{
		{Severity: diagnostic.Error, Kind: diagnostic.ModuleNotFound, Message: "module not found", Request: "./missing.js", Module: "javascript/auto|/app/src/a.js", Line: 3},
		{Severity: diagnostic.Error, Kind: diagnostic.ModuleNotFound, Message: "module not found", Request: "./nope.js"},
		{Severity: diagnostic.Warning, Kind: diagnostic.ModuleWarning, Message: "odd", Module: "javascript/auto|/app/src/a.js"},
	}
	var buf bytes.Buffer
	output.Diagnostics(&buf, diags, "/app")

	want := `entries:
  error "./nope.js": module not found
src/a.js:
  error line 3 "./missing.js": module not found
  warning: odd
`
	if buf.String() != want {
		t.Errorf("Diagnostics mismatch.\nExpected:\n%s\nGot:\n%s", want, buf.String())
	}
}

func TestSummary(t *testing.T) {
	res := buildApp(t)
	var buf bytes.Buffer
	output.Summary(&buf, res)
	if !strings.HasPrefix(buf.String(), "5 modules, ") || !strings.Contains(buf.String(), "built 5 in ") {
		t.Errorf("Unexpected summary: %q", buf.String())
	}
}
