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

package task_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"bennypowers.dev/modgraph/task"
)

type state struct {
	log   []string
	total int
}

type addTask struct {
	n int
}

func (t *addTask) Name() string { return "add" }

func (t *addTask) RunMain(_ context.Context, s *state) ([]task.Task[*state], error) {
	s.total += t.n
	s.log = append(s.log, "add")
	return nil, nil
}

// fanOut spawns count background tasks that each report back with an addTask.
type fanOut struct {
	count int
}

func (t *fanOut) Name() string { return "fan-out" }

func (t *fanOut) RunMain(_ context.Context, s *state) ([]task.Task[*state], error) {
	s.log = append(s.log, "fan-out")
	var next []task.Task[*state]
	for i := 1; i <= t.count; i++ {
		next = append(next, &compute{n: i})
	}
	return next, nil
}

type compute struct {
	n       int
	running *atomic.Int32
	peak    *atomic.Int32
	err     error
	delay   time.Duration
}

func (t *compute) Name() string { return "compute" }

func (t *compute) RunBackground(ctx context.Context) ([]task.Task[*state], error) {
	if t.running != nil {
		cur := t.running.Add(1)
		defer t.running.Add(-1)
		for {
			peak := t.peak.Load()
			if cur <= peak || t.peak.CompareAndSwap(peak, cur) {
				break
			}
		}
	}
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
		}
	}
	if t.err != nil {
		return nil, t.err
	}
	return []task.Task[*state]{&addTask{n: t.n * t.n}}, nil
}

type failing struct{}

func (failing) Name() string { return "failing" }

func (failing) RunMain(context.Context, *state) ([]task.Task[*state], error) {
	return nil, errors.New("boom")
}

type notATask struct{}

func (notATask) Name() string { return "not-a-task" }

func TestRunReachesFixedPoint(t *testing.T) {
	s := &state{}
	err := task.Run(context.Background(), s, []task.Task[*state]{&fanOut{count: 4}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// 1 + 4 + 9 + 16
	if s.total != 30 {
		t.Errorf("Expected total 30, got %d", s.total)
	}
	if len(s.log) != 5 || s.log[0] != "fan-out" {
		t.Errorf("Unexpected main task log: %v", s.log)
	}
}

func TestRunEmpty(t *testing.T) {
	if err := task.Run[*state](context.Background(), &state{}, nil); err != nil {
		t.Fatalf("Run with no tasks failed: %v", err)
	}
}

func TestRunMainErrorAborts(t *testing.T) {
	s := &state{}
	tasks := []task.Task[*state]{
		&compute{n: 1, delay: 50 * time.Millisecond},
		failing{},
		&addTask{n: 100},
	}
	err := task.Run(context.Background(), s, tasks)
	if err == nil || err.Error() != "boom" {
		t.Fatalf("Expected boom error, got %v", err)
	}
	if s.total != 0 {
		t.Errorf("Expected no main task after the failure to run, total=%d", s.total)
	}
}

func TestRunBackgroundErrorAborts(t *testing.T) {
	s := &state{}
	sentinel := errors.New("resolve failed")
	tasks := []task.Task[*state]{
		&compute{n: 2, err: sentinel},
		&compute{n: 3, delay: 20 * time.Millisecond},
	}
	err := task.Run(context.Background(), s, tasks)
	if !errors.Is(err, sentinel) {
		t.Fatalf("Expected sentinel error, got %v", err)
	}
}

func TestRunUnknownTask(t *testing.T) {
	err := task.Run(context.Background(), &state{}, []task.Task[*state]{notATask{}})
	if !errors.Is(err, task.ErrUnknownTask) {
		t.Fatalf("Expected ErrUnknownTask, got %v", err)
	}
}

type countingWrapper struct {
	inner task.MainTask[*state]
	calls *int
}

func (w countingWrapper) Name() string { return w.inner.Name() }

func (w countingWrapper) RunMain(ctx context.Context, s *state) ([]task.Task[*state], error) {
	*w.calls++
	return w.inner.RunMain(ctx, s)
}

func TestRunBeforeRunHook(t *testing.T) {
	s := &state{}
	calls := 0
	hook := func(mt task.MainTask[*state]) task.MainTask[*state] {
		return countingWrapper{inner: mt, calls: &calls}
	}
	err := task.Run(context.Background(), s, []task.Task[*state]{&fanOut{count: 3}},
		task.WithBeforeRun(hook))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if calls != 4 {
		t.Errorf("Expected hook to wrap 4 main tasks, got %d", calls)
	}
	if s.total != 14 {
		t.Errorf("Wrapper must not alter task logic, total=%d", s.total)
	}
}

func TestRunParallelismLimit(t *testing.T) {
	var running, peak atomic.Int32
	var tasks []task.Task[*state]
	for i := 0; i < 12; i++ {
		tasks = append(tasks, &compute{n: 1, running: &running, peak: &peak, delay: 5 * time.Millisecond})
	}
	s := &state{}
	if err := task.Run(context.Background(), s, tasks, task.WithParallelism[*state](3)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if peak.Load() > 3 {
		t.Errorf("Expected at most 3 concurrent background tasks, saw %d", peak.Load())
	}
	if s.total != 12 {
		t.Errorf("Expected all 12 results, total=%d", s.total)
	}
}

func TestRunContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := task.Run(ctx, &state{}, []task.Task[*state]{&compute{n: 1, delay: time.Second}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}
