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

package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/spf13/viper"

	"bennypowers.dev/modgraph/entry"
	"bennypowers.dev/modgraph/internal/config"
)

func TestParseAlias(t *testing.T) {
	got, err := config.ParseAlias([]string{"@ = ./src", "react=preact/compat"})
	if err != nil {
		t.Fatal(err)
	}
	if got["@"] != "./src" || got["react"] != "preact/compat" {
		t.Errorf("Unexpected alias: %v", got)
	}
	for _, bad := range []string{"nope", "=x", "x="} {
		if _, err := config.ParseAlias([]string{bad}); err == nil {
			t.Errorf("Expected an error for %q", bad)
		}
	}
	if got, err := config.ParseAlias(nil); got != nil || err != nil {
		t.Errorf("Expected nil for no pairs, got %v, %v", got, err)
	}
}

func TestReadFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	yaml := `entry:
  - main=./src/index.js
conditions: [browser, import, default]
alias:
  - "@=./src"
lazy: true
parallelism: 4
`
	if err := os.WriteFile(filepath.Join(dir, "modgraph.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := config.ReadFile("", dir); err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	viper.Set("context", dir)

	opts, err := config.CompilerOptions([]string{"admin=./src/admin.js"})
	if err != nil {
		t.Fatalf("CompilerOptions failed: %v", err)
	}
	want := []entry.Entry{
		{Name: "main", Request: "./src/index.js"},
		{Name: "admin", Request: "./src/admin.js"},
	}
	if !slices.Equal(opts.Entries, want) {
		t.Errorf("Entries = %+v, want %+v", opts.Entries, want)
	}
	if opts.Context != dir {
		t.Errorf("Context = %q, want %q", opts.Context, dir)
	}
	if !slices.Equal(opts.Conditions, []string{"browser", "import", "default"}) {
		t.Errorf("Conditions = %v", opts.Conditions)
	}
	if opts.Alias["@"] != filepath.Join(dir, "src") || !opts.LazyDynamicImports || opts.Parallelism != 4 {
		t.Errorf("Unexpected options: %+v", opts)
	}
}

func TestReadFileMissing(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	if err := config.ReadFile("", t.TempDir()); err != nil {
		t.Errorf("Expected a missing default config to be fine, got %v", err)
	}
	if err := config.ReadFile(filepath.Join(t.TempDir(), "nope.yaml"), ""); err == nil {
		t.Error("Expected an explicit missing config to fail")
	}
}

func TestCompilerOptionsRejectsDuplicateEntries(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("context", t.TempDir())

	if _, err := config.CompilerOptions([]string{"./a.js", "./lib/a.js"}); err == nil {
		t.Error("Expected duplicate entry names to fail")
	}
}
