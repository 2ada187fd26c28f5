/*
Copyright 2025 The Kubernetes resource-state-metrics Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package controllermetrics registers the optional telemetry spec.md §6
// calls out: queue depth, in-flight count, per-result-kind counters,
// watcher-reconnect counters, and a lease-state gauge. Grounded on the
// teacher's internal/controller.go Run, which builds a prometheus.Registry
// and registers a promauto-built HistogramVec before handing it to the self
// and main servers; this package follows the same promauto.With(registry)
// construction style but for the metrics this module's engine/watcher/lease
// stack actually produces.
package controllermetrics

import (
	"regexp"

	"github.com/iancoleman/strcase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rexagod/resource-state-metrics/pkg/controller"
)

var nonAlphanumeric = regexp.MustCompile(`\W`)

// sanitizeLabel normalizes a caller-supplied resource/reason string into a
// safe snake_case prometheus label value, matching the teacher's
// internal/family.go sanitizeKey.
func sanitizeLabel(s string) string {
	return strcase.ToSnake(nonAlphanumeric.ReplaceAllString(s, "_"))
}

// Namespace is the common prometheus metric-name prefix for this package,
// matching the teacher's convention of naming everything after the binary.
const Namespace = "ctrlkit"

// Metrics holds every collector this module exposes. Construct one per
// controller instance via New, bound to a caller-supplied registry so a
// program can compose it alongside its own collectors (spec.md §6: "Optional
// metrics").
type Metrics struct {
	QueueDepth       prometheus.Gauge
	InFlight         prometheus.Gauge
	ResultsTotal     *prometheus.CounterVec
	WatchReconnects  *prometheus.CounterVec
	LeaseHeld        prometheus.Gauge
	LeaseTransitions prometheus.Counter
}

// New registers every collector against registry and returns the handles
// used to update them. Registering twice against the same registry panics,
// matching promauto's behavior and the teacher's single-call-site usage in
// Controller.Run.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "scheduler_queue_depth",
			Help:      "Number of distinct object refs currently scheduled for reconciliation.",
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "reconciles_in_flight",
			Help:      "Number of reconciles currently executing across all workers.",
		}),
		ResultsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reconcile_results_total",
			Help:      "Reconcile outcomes by kind (ok, requeue, error).",
		}, []string{"kind"}),
		WatchReconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "watch_reconnects_total",
			Help:      "Watch stream reconnection attempts by reason (relist, desync, error).",
		}, []string{"reason"}),
		LeaseHeld: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "lease_held",
			Help:      "1 if this instance currently holds the leader-election lease, 0 otherwise.",
		}),
		LeaseTransitions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "lease_transitions_total",
			Help:      "Number of times this instance has observed the lease change hands.",
		}),
	}
}

// ObserveResult records one reconcile outcome from the engine's result
// stream against ResultsTotal.
func (m *Metrics) ObserveResult(result controller.Result) {
	m.ResultsTotal.WithLabelValues(resultKind(result)).Inc()
}

func resultKind(result controller.Result) string {
	switch {
	case result.Err != nil:
		return "error"
	case result.Requeued:
		return "requeue"
	default:
		return "ok"
	}
}

// ObserveWatchReconnect increments WatchReconnects for reason.
func (m *Metrics) ObserveWatchReconnect(reason string) {
	m.WatchReconnects.WithLabelValues(sanitizeLabel(reason)).Inc()
}

// SetLeaseHeld mirrors an OnLeadershipChange callback into LeaseHeld, and
// bumps LeaseTransitions whenever leadership is gained.
func (m *Metrics) SetLeaseHeld(held bool) {
	if held {
		m.LeaseHeld.Set(1)
		m.LeaseTransitions.Inc()

		return
	}

	m.LeaseHeld.Set(0)
}
