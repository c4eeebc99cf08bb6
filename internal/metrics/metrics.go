// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes the orchestration plane's ambient Prometheus
// instrumentation: queue depth, active worker count, and run duration.
// This is observability only — the spec excludes a KPI read surface, not
// instrumentation of the core itself.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueDepth is the number of runs currently parked in the
	// supervisor's backlog, not yet spawned.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bld_supervisor_queue_depth",
		Help: "Number of runs parked in the supervisor backlog awaiting a free worker slot",
	})

	// ActiveWorkers is the number of currently spawned worker processes.
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bld_supervisor_active_workers",
		Help: "Number of worker processes currently spawned by the supervisor",
	})

	// RunsTotal counts completed runs by terminal state.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bld_runs_total",
		Help: "Total number of pipeline runs reaching a terminal state, by state",
	}, []string{"state"})

	// RunDuration is the wall-clock duration of a pipeline run from
	// queued to terminal state, in seconds.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bld_run_duration_seconds",
		Help:    "Pipeline run duration in seconds, from queued to terminal state",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. 2048s (~34m)
	}, []string{"pipeline", "state"})
)

// Handler exposes the process's registered metrics for a Prometheus scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}
