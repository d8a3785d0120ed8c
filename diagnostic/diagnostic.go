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

// Package diagnostic describes the errors and warnings a build reports
// against the module or dependency that produced them.
package diagnostic

import (
	"fmt"
	"slices"
	"strings"
)

// Severity classifies a diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "error"
}

// Kind names the failure category.
type Kind string

const (
	// ModuleNotFound is a resolution failure owned by a dependency.
	ModuleNotFound Kind = "ModuleNotFoundError"
	// ModuleBuildError is a loader failure owned by a module.
	ModuleBuildError Kind = "ModuleBuildError"
	// ModuleParseError is a syntax failure owned by a module.
	ModuleParseError Kind = "ModuleParseError"
	// ModuleWarning is a non-fatal message owned by a module.
	ModuleWarning Kind = "ModuleWarning"
)

// Diagnostic is a single error or warning.
type Diagnostic struct {
	Severity Severity
	Kind     Kind
	Message  string

	// Module is the identifier of the owning module, or of the module that
	// issued the failing dependency. Empty for entry dependencies.
	Module string
	// Request is the failing request for dependency-owned diagnostics.
	Request string
	// File and Line locate the source position when known.
	File string
	Line int
}

// NewError creates an error diagnostic from err.
func NewError(kind Kind, err error) Diagnostic {
	return Diagnostic{Severity: Error, Kind: kind, Message: err.Error()}
}

// NewWarning creates a warning diagnostic.
func NewWarning(kind Kind, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: Warning, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsError reports whether the diagnostic is an error.
func (d Diagnostic) IsError() bool {
	return d.Severity == Error
}

// Error implements error so a diagnostic can abort a bailing build.
func (d Diagnostic) Error() string {
	return d.String()
}

func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", d.Severity, d.Kind)
	if d.File != "" {
		b.WriteString(" in ")
		b.WriteString(d.File)
		if d.Line > 0 {
			fmt.Fprintf(&b, ":%d", d.Line)
		}
	}
	if d.Request != "" {
		fmt.Fprintf(&b, " (%q)", d.Request)
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// HasErrors reports whether any diagnostic in ds is an error.
func HasErrors(ds []Diagnostic) bool {
	return slices.ContainsFunc(ds, Diagnostic.IsError)
}

// Sort orders diagnostics by owning module, then file, line and message so
// reports are stable across runs.
func Sort(ds []Diagnostic) {
	slices.SortStableFunc(ds, func(a, b Diagnostic) int {
		if c := strings.Compare(a.Module, b.Module); c != 0 {
			return c
		}
		if c := strings.Compare(a.File, b.File); c != 0 {
			return c
		}
		if a.Line != b.Line {
			return a.Line - b.Line
		}
		return strings.Compare(a.Message, b.Message)
	})
}

// Group buckets diagnostics by owning module identifier.
func Group(ds []Diagnostic) map[string][]Diagnostic {
	groups := make(map[string][]Diagnostic)
	for _, d := range ds {
		groups[d.Module] = append(groups[d.Module], d)
	}
	return groups
}
