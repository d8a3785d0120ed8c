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

// Package logging provides the Logger interface components accept and the
// terminal logger used by the CLI.
package logging

import (
	"io"

	"github.com/charmbracelet/log"
)

// Logger is an interface for logging messages during builds.
type Logger interface {
	Warning(format string, args ...any)
	Debug(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Warning(string, ...any) {}
func (nopLogger) Debug(string, ...any)   {}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// CharmLogger adapts a charmbracelet logger to Logger.
type CharmLogger struct {
	l *log.Logger
}

// New creates a Logger writing to w. Debug messages are only emitted when
// verbose is set.
func New(w io.Writer, verbose bool) *CharmLogger {
	level := log.WarnLevel
	if verbose {
		level = log.DebugLevel
	}
	return &CharmLogger{l: log.NewWithOptions(w, log.Options{
		Prefix: "modgraph",
		Level:  level,
	})}
}

func (c *CharmLogger) Warning(format string, args ...any) {
	c.l.Warnf(format, args...)
}

func (c *CharmLogger) Debug(format string, args ...any) {
	c.l.Debugf(format, args...)
}
