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

// Package output renders build results for the modgraph CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"bennypowers.dev/modgraph/artifact"
	"bennypowers.dev/modgraph/compiler"
	"bennypowers.dev/modgraph/diagnostic"
	"bennypowers.dev/modgraph/fs"
	"bennypowers.dev/modgraph/graph"
	"bennypowers.dev/modgraph/importmap"
)

// Formats lists the supported output formats.
var Formats = []string{"text", "json", "importmap"}

// ValidateFormat returns an error for unknown formats.
func ValidateFormat(format string) error {
	if !slices.Contains(Formats, format) {
		return fmt.Errorf("invalid format %q: must be one of %s", format, strings.Join(Formats, ", "))
	}
	return nil
}

// Render writes res in format to w. Paths are shown relative to root.
func Render(w io.Writer, res *compiler.Result, root, format string) error {
	switch format {
	case "json":
		return JSON(w, res, root)
	case "text":
		Tree(w, res, root)
		return nil
	case "importmap":
		_, err := fmt.Fprintln(w, importmap.FromGraph(res.Artifact.ModuleGraph, root).HTML())
		return err
	default:
		return ValidateFormat(format)
	}
}

// Write sends content to the file named by viper's "output" key, or to
// stdout when it is unset.
func Write(osfs fs.FileSystem, stdout io.Writer, content []byte) error {
	if outputPath := viper.GetString("output"); outputPath != "" {
		return osfs.WriteFile(outputPath, content, 0644)
	}
	_, err := stdout.Write(content)
	return err
}

func rel(root, p string) string {
	if root == "" {
		return p
	}
	r, err := filepath.Rel(root, p)
	if err != nil || strings.HasPrefix(r, "..") {
		return p
	}
	return filepath.ToSlash(r)
}

// Tree writes each entry followed by its static imports, depth first.
// Dynamic imports are marked "async", with their chunk name when given.
// Modules already printed are shown once more with "(see above)" and not
// expanded again.
func Tree(w io.Writer, res *compiler.Result, root string) {
	art := res.Artifact
	mg := art.ModuleGraph
	seen := make(map[graph.ModuleIdentifier]bool)

	var walk func(id graph.ModuleIdentifier, prefix, indent string)
	walk = func(id graph.ModuleIdentifier, prefix, indent string) {
		m, ok := mg.Module(id)
		if !ok {
			return
		}
		if seen[id] {
			fmt.Fprintf(w, "%s%s%s (see above)\n", indent, prefix, rel(root, m.Resource))
			return
		}
		seen[id] = true
		fmt.Fprintf(w, "%s%s%s\n", indent, prefix, rel(root, m.Resource))

		child := indent + "  "
		printed := make(map[graph.ModuleIdentifier]bool)
		for _, depID := range m.Dependencies {
			target, ok := mg.ResolvedModule(depID)
			if !ok {
				if art.IsFailedDependency(depID) {
					fmt.Fprintf(w, "%s%s (unresolved)\n", child, mg.MustDependency(depID).Request)
				}
				continue
			}
			if printed[target] {
				continue
			}
			printed[target] = true
			walk(target, "", child)
		}
		for _, blockID := range m.Blocks {
			block := mg.MustBlock(blockID)
			label := "async "
			if block.GroupOptions.Name != "" {
				label = "async " + block.GroupOptions.Name + ": "
			}
			for _, depID := range block.Dependencies {
				if target, ok := mg.ResolvedModule(depID); ok {
					walk(target, label, child)
				} else if art.IsFailedDependency(depID) {
					fmt.Fprintf(w, "%s%s%s (unresolved)\n", child, label, mg.MustDependency(depID).Request)
				}
			}
		}
	}

	for _, e := range res.Entries {
		if e.Module == "" {
			fmt.Fprintf(w, "%s %s (unresolved)\n", e.Name, e.Request)
			continue
		}
		fmt.Fprintf(w, "%s\n", e.Name)
		walk(e.Module, "", "  ")
	}
}

// Summary writes a one-line account of the pass.
func Summary(w io.Writer, res *compiler.Result) {
	s := res.Stats
	kind := "rebuilt"
	if s.Cold {
		kind = "built"
	}
	fmt.Fprintf(w, "%d modules, %d dependencies; %s %d in %s",
		s.Modules, s.Dependencies, kind, s.Built, s.Duration.Round(time.Millisecond))
	if s.Errors > 0 || s.Warnings > 0 {
		fmt.Fprintf(w, " with %d errors, %d warnings", s.Errors, s.Warnings)
	}
	if !s.Cold && !res.HasModuleGraphChange {
		fmt.Fprint(w, " (graph unchanged)")
	}
	fmt.Fprintln(w)
}

// Diagnostics writes diagnostics grouped under the module that owns them.
// Diagnostics owned by entry dependencies come first.
func Diagnostics(w io.Writer, diags []diagnostic.Diagnostic, root string) {
	groups := diagnostic.Group(diags)
	owners := make([]string, 0, len(groups))
	for owner := range groups {
		owners = append(owners, owner)
	}
	slices.Sort(owners)

	for _, owner := range owners {
		title := "entries"
		if owner != "" {
			title = rel(root, resourceOf(owner))
		}
		fmt.Fprintf(w, "%s:\n", title)
		for _, d := range groups[owner] {
			fmt.Fprintf(w, "  %s", d.Severity)
			if d.Line > 0 {
				fmt.Fprintf(w, " line %d", d.Line)
			}
			if d.Request != "" {
				fmt.Fprintf(w, " %q", d.Request)
			}
			fmt.Fprintf(w, ": %s\n", d.Message)
		}
	}
}

// resourceOf extracts the resource from a module identifier.
func resourceOf(id string) string {
	parts := strings.Split(id, "|")
	if len(parts) < 2 {
		return id
	}
	return parts[1]
}

// Report is the JSON form of a build result.
type Report struct {
	Entries     []ReportEntry  `json:"entries"`
	Modules     []ReportModule `json:"modules"`
	Diagnostics []string       `json:"diagnostics,omitempty"`
	Changed     bool           `json:"changed"`
}

// ReportEntry is an entry and the module it resolved to.
type ReportEntry struct {
	Name    string `json:"name"`
	Request string `json:"request"`
	Layer   string `json:"layer,omitempty"`
	Module  string `json:"module,omitempty"`
}

// ReportModule describes one module of the graph.
type ReportModule struct {
	Resource string   `json:"resource"`
	Type     string   `json:"type"`
	Layer    string   `json:"layer,omitempty"`
	Issuer   string   `json:"issuer,omitempty"`
	Depth    int      `json:"depth"`
	Imports  []string `json:"imports,omitempty"`
	Async    []string `json:"async,omitempty"`
	Exports  []string `json:"exports,omitempty"`
	Failed   bool     `json:"failed,omitempty"`
}

// NewReport flattens res into a Report, with modules in pre-order.
func NewReport(res *compiler.Result, root string) Report {
	art := res.Artifact
	mg := art.ModuleGraph
	r := Report{Changed: res.HasModuleGraphChange}

	for _, e := range res.Entries {
		re := ReportEntry{Name: e.Name, Request: e.Request, Layer: e.Layer}
		if m, ok := mg.Module(e.Module); ok {
			re.Module = rel(root, m.Resource)
		}
		r.Entries = append(r.Entries, re)
	}

	ids := mg.Modules()
	slices.SortStableFunc(ids, func(a, b graph.ModuleIdentifier) int {
		return preOrder(mg, a) - preOrder(mg, b)
	})
	for _, id := range ids {
		r.Modules = append(r.Modules, reportModule(art, id, root))
	}
	for _, d := range res.Diagnostics {
		r.Diagnostics = append(r.Diagnostics, d.String())
	}
	return r
}

// preOrder sorts unreachable modules last.
func preOrder(mg *graph.ModuleGraph, id graph.ModuleIdentifier) int {
	idx := mg.MustModuleGraphModule(id).PreOrderIndex
	if idx < 0 {
		return mg.ModuleCount()
	}
	return idx
}

func reportModule(art *artifact.MakeArtifact, id graph.ModuleIdentifier, root string) ReportModule {
	mg := art.ModuleGraph
	m := mg.MustModule(id)
	mgm := mg.MustModuleGraphModule(id)
	rm := ReportModule{
		Resource: rel(root, m.Resource),
		Type:     string(m.Type),
		Layer:    m.Layer,
		Depth:    mgm.Depth,
		Failed:   art.IsFailedModule(id),
	}
	if issuer, ok := mgm.Issuer().Module(); ok {
		rm.Issuer = rel(root, mg.MustModule(issuer).Resource)
	}
	for _, dep := range m.Dependencies {
		if target, ok := mg.ResolvedModule(dep); ok {
			p := rel(root, mg.MustModule(target).Resource)
			if !slices.Contains(rm.Imports, p) {
				rm.Imports = append(rm.Imports, p)
			}
		}
	}
	for _, b := range m.Blocks {
		for _, dep := range mg.MustBlock(b).Dependencies {
			if target, ok := mg.ResolvedModule(dep); ok {
				rm.Async = append(rm.Async, rel(root, mg.MustModule(target).Resource))
			}
		}
	}
	if exports := mg.ExportsInfo(id); exports != nil && !exports.Unknown {
		rm.Exports = exports.Provided
	}
	return rm
}

// JSON writes res as an indented Report.
func JSON(w io.Writer, res *compiler.Result, root string) error {
	out, err := json.MarshalIndent(NewReport(res, root), "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling report: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
