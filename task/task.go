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

// Package task runs a self-extending list of work items to a fixed point.
//
// Main tasks run one at a time on the calling goroutine and are the only
// tasks given the shared context C, so they may mutate it without locks.
// Background tasks run on their own goroutines, never see C, and hand their
// follow-up tasks back through a channel the driving loop consumes.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"bennypowers.dev/modgraph/internal/logging"
)

// Task is a unit of work. A Task must implement exactly one of MainTask or
// BackgroundTask.
type Task[C any] interface {
	Name() string
}

// MainTask runs exclusively against the shared context.
type MainTask[C any] interface {
	Task[C]
	RunMain(ctx context.Context, c C) ([]Task[C], error)
}

// BackgroundTask runs independently, possibly in parallel with other
// background tasks.
type BackgroundTask[C any] interface {
	Task[C]
	RunBackground(ctx context.Context) ([]Task[C], error)
}

// BeforeRun may substitute a main task with a wrapper before it executes.
type BeforeRun[C any] func(MainTask[C]) MainTask[C]

// ErrUnknownTask is returned for tasks that are neither main nor background.
var ErrUnknownTask = errors.New("task is neither a main nor a background task")

type config[C any] struct {
	beforeRun   BeforeRun[C]
	parallelism int
	logger      logging.Logger
}

// Option configures Run.
type Option[C any] func(*config[C])

// WithBeforeRun installs a hook applied to every main task.
func WithBeforeRun[C any](hook BeforeRun[C]) Option[C] {
	return func(c *config[C]) {
		c.beforeRun = hook
	}
}

// WithParallelism limits how many background tasks execute at once.
// Values <= 0 mean unlimited.
func WithParallelism[C any](n int) Option[C] {
	return func(c *config[C]) {
		c.parallelism = n
	}
}

// WithLogger sets the logger for scheduler debug output.
func WithLogger[C any](logger logging.Logger) Option[C] {
	return func(c *config[C]) {
		c.logger = logger
	}
}

type backgroundResult[C any] struct {
	name  string
	tasks []Task[C]
	err   error
}

// Run executes tasks and everything they produce until no work remains.
//
// Each iteration spawns every queued background task, then runs one queued
// main task if there is one, and otherwise waits for the next background
// result. The first error from any task ends the run; background tasks still
// in flight drop their results.
func Run[C any](ctx context.Context, c C, tasks []Task[C], opts ...Option[C]) error {
	cfg := config[C]{}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := logging.OrNop(cfg.logger)

	runCtx, cancel := context.WithCancel(ctx)
	var shutdown atomic.Bool
	done := make(chan struct{})
	defer func() {
		shutdown.Store(true)
		close(done)
		cancel()
	}()

	var sem chan struct{}
	if cfg.parallelism > 0 {
		sem = make(chan struct{}, cfg.parallelism)
	}

	var (
		mainQueue  []MainTask[C]
		background []BackgroundTask[C]
		results    = make(chan backgroundResult[C])
		inFlight   int
		mainRuns   int
		bgRuns     int
	)

	split := func(ts []Task[C]) error {
		for _, t := range ts {
			switch tt := t.(type) {
			case MainTask[C]:
				mainQueue = append(mainQueue, tt)
			case BackgroundTask[C]:
				background = append(background, tt)
			default:
				return fmt.Errorf("%w: %s", ErrUnknownTask, t.Name())
			}
		}
		return nil
	}

	if err := split(tasks); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			shutdown.Store(true)
			return err
		}
		for _, bt := range background {
			inFlight++
			bgRuns++
			go func(bt BackgroundTask[C]) {
				if sem != nil {
					select {
					case sem <- struct{}{}:
						defer func() { <-sem }()
					case <-done:
						return
					}
				}
				if shutdown.Load() {
					return
				}
				next, err := bt.RunBackground(runCtx)
				if shutdown.Load() {
					return
				}
				select {
				case results <- backgroundResult[C]{name: bt.Name(), tasks: next, err: err}:
				case <-done:
				}
			}(bt)
		}
		background = background[:0]

		if len(mainQueue) > 0 {
			mt := mainQueue[0]
			mainQueue = mainQueue[1:]
			if cfg.beforeRun != nil {
				mt = cfg.beforeRun(mt)
			}
			mainRuns++
			next, err := mt.RunMain(runCtx, c)
			if err != nil {
				shutdown.Store(true)
				return err
			}
			if err := split(next); err != nil {
				shutdown.Store(true)
				return err
			}
			continue
		}

		if inFlight == 0 {
			logger.Debug("task loop finished: %d main, %d background", mainRuns, bgRuns)
			return nil
		}

		select {
		case res := <-results:
			inFlight--
			if res.err != nil {
				shutdown.Store(true)
				return res.err
			}
			if err := split(res.tasks); err != nil {
				shutdown.Store(true)
				return err
			}
		case <-ctx.Done():
			shutdown.Store(true)
			return ctx.Err()
		}
	}
}
