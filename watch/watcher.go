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

// Package watch reports source changes to an incremental build.
//
// A Watcher monitors a directory tree and, after a quiet period, hands the
// coalesced set of changed files to a callback, split into files that were
// modified or created and files that were removed.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"bennypowers.dev/modgraph/internal/logging"
)

const defaultDebounce = 100 * time.Millisecond

var builtinIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/.DS_Store",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
}

// Changes is one debounced batch. Paths are absolute.
type Changes struct {
	Modified []string
	Removed  []string
}

// Empty reports whether the batch has no paths.
func (c Changes) Empty() bool {
	return len(c.Modified) == 0 && len(c.Removed) == 0
}

// Config holds the parameters for a Watcher.
type Config struct {
	// BaseDir is the root directory to watch. Defaults to the working
	// directory.
	BaseDir string

	// Patterns select the files that trigger callbacks, as doublestar globs
	// relative to BaseDir. Empty watches every non-ignored file.
	Patterns []string

	// Ignore adds patterns to the built-in ignores.
	Ignore []string

	// Debounce is the quiet period before the callback fires.
	Debounce time.Duration

	// OnChange receives each batch. Changes seen while a callback runs are
	// delivered in the next batch once it returns.
	OnChange func(ctx context.Context, changes Changes) error

	Logger logging.Logger
}

// Watcher monitors BaseDir. Run must be called exactly once.
type Watcher struct {
	cfg    Config
	root   string
	quiet  time.Duration
	skip   []string
	fsw    *fsnotify.Watcher
	logger logging.Logger
	ran    atomic.Bool
}

// New creates a Watcher and registers every non-ignored directory under
// BaseDir.
func New(cfg Config) (*Watcher, error) {
	for _, set := range []struct {
		label    string
		patterns []string
	}{{"watch", cfg.Patterns}, {"ignore", cfg.Ignore}} {
		for _, pat := range set.patterns {
			if !doublestar.ValidatePattern(pat) {
				return nil, fmt.Errorf("watch: invalid %s pattern %q", set.label, pat)
			}
		}
	}

	root := cfg.BaseDir
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve base directory: %w", err)
	}

	w := &Watcher{
		cfg:    cfg,
		root:   root,
		quiet:  orDefault(cfg.Debounce, defaultDebounce),
		skip:   slices.Concat(builtinIgnores, cfg.Ignore),
		logger: logging.OrNop(cfg.Logger),
	}
	if w.fsw, err = fsnotify.NewWatcher(); err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if err := w.watchTree(root); err != nil {
		return nil, errors.Join(err, w.fsw.Close())
	}
	return w, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// Run delivers batches until ctx is cancelled, then waits for a running
// callback and returns nil. Events are collected on the calling goroutine;
// callbacks run one at a time on another.
func (w *Watcher) Run(ctx context.Context) error {
	if w.ran.Swap(true) {
		return errors.New("watch: Run called more than once")
	}
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.logger.Warning("watch: close: %v", err)
		}
	}()

	pending := make(map[string]struct{})
	quiet := time.NewTimer(w.quiet)
	quiet.Stop()
	defer quiet.Stop()

	var delivered chan struct{}
	for {
		select {
		case <-ctx.Done():
			if delivered != nil {
				<-delivered
			}
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			if name, ok := w.accept(evt); ok {
				pending[name] = struct{}{}
				quiet.Reset(w.quiet)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				return fmt.Errorf("watch: %w", err)
			}
			w.logger.Warning("watch: %v", err)

		case <-quiet.C:
			if delivered != nil || len(pending) == 0 {
				continue
			}
			changes := Classify(slices.Collect(maps.Keys(pending)), fileExists)
			clear(pending)
			delivered = make(chan struct{})
			go w.deliver(ctx, changes, delivered)

		case <-delivered:
			delivered = nil
			if len(pending) > 0 {
				quiet.Reset(w.quiet)
			}
		}
	}
}

func (w *Watcher) deliver(ctx context.Context, changes Changes, done chan<- struct{}) {
	defer close(done)
	if changes.Empty() || w.cfg.OnChange == nil {
		return
	}
	if err := w.cfg.OnChange(ctx, changes); err != nil {
		w.logger.Warning("watch: callback error: %v", err)
	}
}

// accept filters an event down to a reportable path. New directories are
// watched, not reported.
func (w *Watcher) accept(evt fsnotify.Event) (string, bool) {
	if evt.Op == fsnotify.Chmod {
		return "", false
	}
	rel := w.rel(evt.Name)
	if matchAny(w.skip, rel) {
		return "", false
	}
	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if err := w.watchTree(evt.Name); err != nil {
				w.logger.Warning("%v", err)
			}
			return "", false
		}
	}
	if len(w.cfg.Patterns) > 0 && !matchAny(w.cfg.Patterns, rel) {
		return "", false
	}
	return evt.Name, true
}

// watchTree adds dir and every non-ignored directory below it.
func (w *Watcher) watchTree(dir string) error {
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			w.logger.Warning("watch: skipping %q: %v", p, err)
			return nil
		case !d.IsDir():
			return nil
		}
		if rel := w.rel(p); rel != "." && (matchAny(w.skip, rel) || matchAny(w.skip, rel+"/")) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch %q: %w", p, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}

func (w *Watcher) rel(p string) string {
	if rel, err := filepath.Rel(w.root, p); err == nil {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(p)
}

// Classify splits paths into existing and removed files, sorted.
func Classify(paths []string, exists func(string) bool) Changes {
	var c Changes
	for _, p := range paths {
		if exists(p) {
			c.Modified = append(c.Modified, p)
		} else {
			c.Removed = append(c.Removed, p)
		}
	}
	slices.Sort(c.Modified)
	slices.Sort(c.Removed)
	return c
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func matchAny(patterns []string, rel string) bool {
	return slices.ContainsFunc(patterns, func(pat string) bool {
		ok, err := doublestar.Match(pat, rel)
		return err == nil && ok
	})
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	return slices.Clone(builtinIgnores)
}
