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

// Package metrics exposes build activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bennypowers.dev/modgraph/task"
)

// Pass summarizes one build pass.
type Pass struct {
	Cold     bool
	Duration time.Duration

	Modules      int
	Dependencies int
	Built        int
	Revoked      int
	Changed      bool

	Errors   int
	Warnings int

	ResolveCacheHits   int64
	ResolveCacheMisses int64
}

// Recorder owns a registry and the collectors registered on it.
type Recorder struct {
	registry *prometheus.Registry

	tasksTotal    *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	passesTotal   *prometheus.CounterVec
	passDuration  prometheus.Histogram
	modules       prometheus.Gauge
	dependencies  prometheus.Gauge
	builtTotal    prometheus.Counter
	revokedTotal  prometheus.Counter
	changesTotal  prometheus.Counter
	diagnostics   *prometheus.GaugeVec
	resolverCache *prometheus.GaugeVec
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modgraph_tasks_total",
				Help: "Number of main tasks run, by task name.",
			},
			[]string{"task"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "modgraph_task_duration_seconds",
				Help:    "Time spent in main tasks, by task name.",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"task"},
		),
		passesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modgraph_passes_total",
				Help: "Number of build passes, by kind.",
			},
			[]string{"kind"},
		),
		passDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "modgraph_pass_duration_seconds",
				Help:    "Time taken by a build pass.",
				Buckets: prometheus.DefBuckets,
			},
		),
		modules: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "modgraph_modules",
				Help: "Number of modules in the graph after the last pass.",
			},
		),
		dependencies: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "modgraph_dependencies",
				Help: "Number of dependencies in the graph after the last pass.",
			},
		),
		builtTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "modgraph_modules_built_total",
				Help: "Total number of module builds.",
			},
		),
		revokedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "modgraph_modules_revoked_total",
				Help: "Total number of modules revoked for rebuilding.",
			},
		),
		changesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "modgraph_graph_changes_total",
				Help: "Number of passes that changed the shape of the module graph.",
			},
		),
		diagnostics: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "modgraph_diagnostics",
				Help: "Diagnostics reported by the last pass, by severity.",
			},
			[]string{"severity"},
		),
		resolverCache: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "modgraph_resolver_cache_lookups",
				Help: "Resolver cache lookups since the cache was created, by result.",
			},
			[]string{"result"},
		),
	}
	r.registry.MustRegister(
		r.tasksTotal,
		r.taskDuration,
		r.passesTotal,
		r.passDuration,
		r.modules,
		r.dependencies,
		r.builtTotal,
		r.revokedTotal,
		r.changesTotal,
		r.diagnostics,
		r.resolverCache,
	)
	return r
}

// Registry returns the registry the collectors are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObservePass records a finished pass.
func (r *Recorder) ObservePass(p Pass) {
	kind := "incremental"
	if p.Cold {
		kind = "cold"
	}
	r.passesTotal.WithLabelValues(kind).Inc()
	r.passDuration.Observe(p.Duration.Seconds())
	r.modules.Set(float64(p.Modules))
	r.dependencies.Set(float64(p.Dependencies))
	r.builtTotal.Add(float64(p.Built))
	r.revokedTotal.Add(float64(p.Revoked))
	if p.Changed {
		r.changesTotal.Inc()
	}
	r.diagnostics.WithLabelValues("error").Set(float64(p.Errors))
	r.diagnostics.WithLabelValues("warning").Set(float64(p.Warnings))
	r.resolverCache.WithLabelValues("hit").Set(float64(p.ResolveCacheHits))
	r.resolverCache.WithLabelValues("miss").Set(float64(p.ResolveCacheMisses))
}

func (r *Recorder) observeTask(name string, d time.Duration) {
	r.tasksTotal.WithLabelValues(name).Inc()
	r.taskDuration.WithLabelValues(name).Observe(d.Seconds())
}

// TimeTasks returns a hook that counts and times every main task. A nil
// Recorder yields a nil hook.
func TimeTasks[C any](r *Recorder) task.BeforeRun[C] {
	if r == nil {
		return nil
	}
	return func(t task.MainTask[C]) task.MainTask[C] {
		return &timedTask[C]{MainTask: t, recorder: r}
	}
}

type timedTask[C any] struct {
	task.MainTask[C]
	recorder *Recorder
}

func (t *timedTask[C]) RunMain(ctx context.Context, c C) ([]task.Task[C], error) {
	start := time.Now()
	next, err := t.MainTask.RunMain(ctx, c)
	t.recorder.observeTask(t.Name(), time.Since(start))
	return next, err
}
