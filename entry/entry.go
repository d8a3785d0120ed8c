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

// Package entry turns command line and config entry specifications into
// entry requests. An entry is either "request" or "name=request"; requests
// may be globs, and HTML files contribute their module scripts.
package entry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"bennypowers.dev/modgraph/fs"
)

// ErrNoMatch is returned when an entry glob matches no files.
var ErrNoMatch = errors.New("entry matched no files")

// Entry is a named entry request.
type Entry struct {
	Name    string
	Request string
	// Layer is assigned to the entry module and inherited by its imports.
	Layer string
}

// Parse parses "request" or "name=request". Unnamed entries are named
// after the request's base name without extension.
func Parse(spec string) (Entry, error) {
	name, request, found := strings.Cut(spec, "=")
	if !found {
		request, name = spec, ""
	}
	request = strings.TrimSpace(request)
	if request == "" {
		return Entry{}, fmt.Errorf("empty entry request in %q", spec)
	}
	if name = strings.TrimSpace(name); name == "" {
		name = defaultName(request)
	}
	return Entry{Name: name, Request: request}, nil
}

// ParseAll parses every spec and rejects duplicate names.
func ParseAll(specs []string) ([]Entry, error) {
	var entries []Entry
	seen := make(map[string]bool)
	for _, s := range specs {
		e, err := Parse(s)
		if err != nil {
			return nil, err
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("duplicate entry name %q", e.Name)
		}
		seen[e.Name] = true
		entries = append(entries, e)
	}
	return entries, nil
}

func defaultName(request string) string {
	base := path.Base(filepath.ToSlash(request))
	return strings.TrimSuffix(base, path.Ext(base))
}

// Expand replaces glob entries with one entry per matching file and HTML
// entries with one entry per module script. context is the directory
// relative requests are taken from. Bare requests pass through unchanged.
func Expand(fsys fs.FileSystem, context string, entries []Entry) ([]Entry, error) {
	var out []Entry
	for _, e := range entries {
		var expanded []Entry
		var err error
		switch {
		case isLocal(e.Request) && hasMeta(e.Request):
			expanded, err = expandGlob(fsys, context, e)
		case isLocal(e.Request) && strings.EqualFold(path.Ext(e.Request), ".html"):
			expanded, err = expandHTML(fsys, context, e)
		default:
			if e.Name == "" {
				e.Name = defaultName(e.Request)
			}
			expanded = []Entry{e}
		}
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

func isLocal(request string) bool {
	return strings.HasPrefix(request, "./") || strings.HasPrefix(request, "../") || filepath.IsAbs(request)
}

func hasMeta(request string) bool {
	return strings.ContainsAny(request, "*?[{")
}

func expandGlob(fsys fs.FileSystem, context string, e Entry) ([]Entry, error) {
	pattern := e.Request
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(context, pattern)
	}
	pattern = filepath.ToSlash(pattern)
	base, _ := doublestar.SplitPattern(pattern)

	var matches []string
	err := iofs.WalkDir(fsys, base, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "node_modules" && p != base {
				return iofs.SkipDir
			}
			return nil
		}
		if ok, _ := doublestar.Match(pattern, p); ok {
			matches = append(matches, p)
		}
		return nil
	})
	if err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return nil, fmt.Errorf("expand entry %q: %w", e.Request, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, e.Request)
	}
	slices.Sort(matches)

	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		name := e.Name
		if len(matches) > 1 || name == "" || name == defaultName(e.Request) {
			rel := strings.TrimPrefix(strings.TrimPrefix(m, base), "/")
			name = strings.TrimSuffix(rel, path.Ext(rel))
		}
		entries = append(entries, Entry{Name: name, Request: m, Layer: e.Layer})
	}
	return entries, nil
}

func expandHTML(fsys fs.FileSystem, context string, e Entry) ([]Entry, error) {
	p := e.Request
	if !filepath.IsAbs(p) {
		p = filepath.Join(context, p)
	}
	data, err := fsys.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", p, err)
	}
	srcs, err := ModuleScripts(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse entry %s: %w", p, err)
	}
	dir := filepath.Dir(p)
	var entries []Entry
	for i, src := range srcs {
		request := src
		if !isLocal(request) {
			request = "./" + request
		}
		if !filepath.IsAbs(request) {
			request = filepath.Join(dir, request)
		}
		name := e.Name
		if name == "" {
			name = defaultName(e.Request)
		}
		if len(srcs) > 1 {
			name = fmt.Sprintf("%s.%d", name, i)
		}
		entries = append(entries, Entry{Name: name, Request: request, Layer: e.Layer})
	}
	return entries, nil
}

// ModuleScripts returns the src of every <script type="module" src> in an
// HTML document, in document order. Remote scripts are skipped.
func ModuleScripts(r io.Reader) ([]string, error) {
	z := html.NewTokenizer(r)
	var srcs []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return srcs, nil
			}
			return nil, z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.DataAtom != atom.Script {
				continue
			}
			var typ, src string
			for _, attr := range tok.Attr {
				switch attr.Key {
				case "type":
					typ = attr.Val
				case "src":
					src = attr.Val
				}
			}
			if typ != "module" || src == "" || isRemote(src) {
				continue
			}
			srcs = append(srcs, src)
		}
	}
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") || strings.HasPrefix(src, "//")
}
