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

package loader

import (
	"regexp"
	"strings"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"
	tsTypescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"bennypowers.dev/modgraph/graph"
)

// Languages holds pre-initialized tree-sitter language grammars.
var languages = struct {
	typescript *ts.Language
	tsx        *ts.Language
}{
	ts.NewLanguage(tsTypescript.LanguageTypescript()),
	ts.NewLanguage(tsTypescript.LanguageTSX()),
}

// Parser pools for reuse.
var (
	tsParserPool = sync.Pool{
		New: func() any {
			parser := ts.NewParser()
			if err := parser.SetLanguage(languages.typescript); err != nil {
				panic("failed to set TypeScript language: " + err.Error())
			}
			return parser
		},
	}

	tsxParserPool = sync.Pool{
		New: func() any {
			parser := ts.NewParser()
			if err := parser.SetLanguage(languages.tsx); err != nil {
				panic("failed to set TSX language: " + err.Error())
			}
			return parser
		},
	}
)

func getParser(tsx bool) *ts.Parser {
	if tsx {
		return tsxParserPool.Get().(*ts.Parser)
	}
	return tsParserPool.Get().(*ts.Parser)
}

func putParser(p *ts.Parser, tsx bool) {
	p.Reset()
	if tsx {
		tsxParserPool.Put(p)
		return
	}
	tsParserPool.Put(p)
}

// Import is a static dependency found in a source file.
type Import struct {
	Type    graph.DependencyType
	Request string
	// Names are the imported bindings; see graph.Dependency.
	Names []string
	// Weak marks type-only imports.
	Weak bool
	Line int
}

// DynamicImport is an import() call with a literal request.
type DynamicImport struct {
	Request string
	// ChunkName comes from a webpackChunkName magic comment.
	ChunkName string
	Line      int
}

// Analysis is what a source file imports and exports.
type Analysis struct {
	Imports []Import
	Dynamic []DynamicImport
	Exports []string
	// ExportsUnknown is set for star re-exports and CommonJS modules.
	ExportsUnknown bool
	// SyntaxErrorLine is the first line with a syntax error, 0 if none.
	SyntaxErrorLine int
}

var chunkNamePattern = regexp.MustCompile(`webpackChunkName\s*:\s*["']([^"']+)["']`)

// Analyze parses a JavaScript or TypeScript source. tsx selects the TSX
// grammar, which JSX in .js and .jsx files also needs.
func Analyze(src []byte, tsx bool) *Analysis {
	parser := getParser(tsx)
	defer putParser(parser, tsx)

	tree := parser.Parse(src, nil)
	a := &Analysis{}
	if tree == nil {
		a.SyntaxErrorLine = 1
		return a
	}
	defer tree.Close()

	root := tree.RootNode()
	w := &walker{src: src, a: a}
	w.walk(root)
	if root.HasError() {
		a.SyntaxErrorLine = firstErrorLine(root)
	}
	return a
}

type walker struct {
	src []byte
	a   *Analysis
}

func (w *walker) walk(n *ts.Node) {
	switch n.Kind() {
	case "import_statement":
		w.importStatement(n)
		return
	case "export_statement":
		w.exportStatement(n)
	case "call_expression":
		w.callExpression(n)
	}
	for i := uint(0); i < n.NamedChildCount(); i++ {
		w.walk(n.NamedChild(i))
	}
}

func (w *walker) text(n *ts.Node) string {
	return n.Utf8Text(w.src)
}

func line(n *ts.Node) int {
	return int(n.StartPosition().Row) + 1 // 1-indexed
}

// hasToken reports whether n has an anonymous child token.
func hasToken(n *ts.Node, token string) bool {
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		if !c.IsNamed() && c.Kind() == token {
			return true
		}
	}
	return false
}

// stringValue returns the contents of a string literal node.
func (w *walker) stringValue(n *ts.Node) (string, bool) {
	if n == nil || n.Kind() != "string" {
		return "", false
	}
	s := w.text(n)
	if len(s) < 2 {
		return "", false
	}
	return s[1 : len(s)-1], true
}

func (w *walker) importStatement(n *ts.Node) {
	request, ok := w.stringValue(n.ChildByFieldName("source"))
	if !ok {
		// import x = require("y")
		if req := firstNamedOfKind(n, "import_require_clause"); req != nil {
			if r, ok := w.stringValue(req.ChildByFieldName("source")); ok {
				w.a.Imports = append(w.a.Imports, Import{Type: graph.TypeRequire, Request: r, Line: line(n)})
			}
		}
		return
	}
	imp := Import{
		Type:    graph.TypeESMImport,
		Request: request,
		Weak:    hasToken(n, "type") || hasToken(n, "typeof"),
		Line:    line(n),
	}
	if clause := firstNamedOfKind(n, "import_clause"); clause != nil {
		imp.Names = w.importNames(clause)
	}
	w.a.Imports = append(w.a.Imports, imp)
}

func (w *walker) importNames(clause *ts.Node) []string {
	var names []string
	for i := uint(0); i < clause.NamedChildCount(); i++ {
		c := clause.NamedChild(i)
		switch c.Kind() {
		case "identifier":
			names = append(names, "default")
		case "namespace_import":
			names = append(names, "*")
		case "named_imports":
			for j := uint(0); j < c.NamedChildCount(); j++ {
				spec := c.NamedChild(j)
				if spec.Kind() != "import_specifier" {
					continue
				}
				if name := spec.ChildByFieldName("name"); name != nil {
					names = append(names, trimQuotes(w.text(name)))
				}
			}
		}
	}
	return names
}

func (w *walker) exportStatement(n *ts.Node) {
	source, reexport := w.stringValue(n.ChildByFieldName("source"))
	typeOnly := hasToken(n, "type")

	if reexport {
		imp := Import{Type: graph.TypeESMReexport, Request: source, Weak: typeOnly, Line: line(n)}
		switch {
		case firstNamedOfKind(n, "namespace_export") != nil:
			ns := firstNamedOfKind(n, "namespace_export")
			imp.Names = []string{"*"}
			if name := lastNamedChild(ns); name != nil && !typeOnly {
				w.a.Exports = append(w.a.Exports, trimQuotes(w.text(name)))
			}
		case firstNamedOfKind(n, "export_clause") != nil:
			names, exported := w.exportClause(firstNamedOfKind(n, "export_clause"))
			imp.Names = names
			if !typeOnly {
				w.a.Exports = append(w.a.Exports, exported...)
			}
		default:
			// export * from "x"
			imp.Names = []string{"*"}
			if !typeOnly {
				w.a.ExportsUnknown = true
			}
		}
		w.a.Imports = append(w.a.Imports, imp)
		return
	}
	if typeOnly {
		return
	}

	if hasToken(n, "default") {
		w.a.Exports = append(w.a.Exports, "default")
		return
	}
	if clause := firstNamedOfKind(n, "export_clause"); clause != nil {
		_, exported := w.exportClause(clause)
		w.a.Exports = append(w.a.Exports, exported...)
		return
	}
	if decl := n.ChildByFieldName("declaration"); decl != nil {
		w.a.Exports = append(w.a.Exports, w.declarationNames(decl)...)
	}
}

// exportClause returns the local names and the exported names of
// "{ a, b as c }".
func (w *walker) exportClause(clause *ts.Node) (local, exported []string) {
	for i := uint(0); i < clause.NamedChildCount(); i++ {
		spec := clause.NamedChild(i)
		if spec.Kind() != "export_specifier" {
			continue
		}
		name := spec.ChildByFieldName("name")
		if name == nil {
			continue
		}
		local = append(local, trimQuotes(w.text(name)))
		if alias := spec.ChildByFieldName("alias"); alias != nil {
			exported = append(exported, trimQuotes(w.text(alias)))
		} else {
			exported = append(exported, trimQuotes(w.text(name)))
		}
	}
	return local, exported
}

func (w *walker) declarationNames(decl *ts.Node) []string {
	switch decl.Kind() {
	case "lexical_declaration", "variable_declaration":
		var names []string
		for i := uint(0); i < decl.NamedChildCount(); i++ {
			d := decl.NamedChild(i)
			if d.Kind() != "variable_declarator" {
				continue
			}
			if name := d.ChildByFieldName("name"); name != nil && name.Kind() == "identifier" {
				names = append(names, w.text(name))
			}
		}
		return names
	case "interface_declaration", "type_alias_declaration":
		return nil
	}
	if name := decl.ChildByFieldName("name"); name != nil {
		return []string{w.text(name)}
	}
	return nil
}

func (w *walker) callExpression(n *ts.Node) {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")
	if fn == nil || args == nil {
		return
	}
	switch {
	case fn.Kind() == "import":
		var request, chunkName string
		found := false
		for i := uint(0); i < args.NamedChildCount(); i++ {
			arg := args.NamedChild(i)
			if arg.Kind() == "comment" {
				if m := chunkNamePattern.FindStringSubmatch(w.text(arg)); m != nil {
					chunkName = m[1]
				}
				continue
			}
			if !found {
				request, found = w.stringValue(arg)
				if !found {
					// import(`./${name}`) has no static request
					return
				}
			}
		}
		if found {
			w.a.Dynamic = append(w.a.Dynamic, DynamicImport{Request: request, ChunkName: chunkName, Line: line(n)})
		}
	case fn.Kind() == "identifier" && w.text(fn) == "require":
		if args.NamedChildCount() == 0 {
			return
		}
		if request, ok := w.stringValue(args.NamedChild(0)); ok {
			w.a.Imports = append(w.a.Imports, Import{Type: graph.TypeRequire, Request: request, Line: line(n)})
			w.a.ExportsUnknown = true
		}
	}
}

func firstNamedOfKind(n *ts.Node, kind string) *ts.Node {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if c := n.NamedChild(i); c.Kind() == kind {
			return c
		}
	}
	return nil
}

func lastNamedChild(n *ts.Node) *ts.Node {
	if n.NamedChildCount() == 0 {
		return nil
	}
	return n.NamedChild(n.NamedChildCount() - 1)
}

func firstErrorLine(n *ts.Node) int {
	if n.IsError() || n.IsMissing() {
		return line(n)
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		if c.HasError() || c.IsMissing() {
			return firstErrorLine(c)
		}
	}
	return line(n)
}

// trimQuotes unwraps string export names like `export { a as "b-c" }`.
func trimQuotes(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

// isTSX reports whether a file needs the TSX grammar.
func isTSX(resource string) bool {
	return strings.HasSuffix(resource, ".tsx") || strings.HasSuffix(resource, ".jsx") ||
		strings.HasSuffix(resource, ".js") || strings.HasSuffix(resource, ".mjs") ||
		strings.HasSuffix(resource, ".cjs")
}
