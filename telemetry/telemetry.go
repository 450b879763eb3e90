// Copyright 2026 The JazzPetri Authors
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

// Package telemetry bundles the tracer and metrics used by the analysis
// pipeline and the simulator.
//
// Callers inject a prometheus.Registerer and a trace.TracerProvider, so
// tests can assert on a private registry and a span recorder. Nop returns
// a bundle that records nothing.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName names the tracer.
const InstrumentationName = "github.com/jazzpetri/popsafe"

// Oracle query outcomes used as the status label.
const (
	StatusReachable   = "reachable"
	StatusUnreachable = "unreachable"
	StatusUnavailable = "unavailable"
)

// Metrics holds the collectors. All counters end in _total and durations
// are in seconds.
type Metrics struct {
	JobsTotal          *prometheus.CounterVec
	JobsInFlight       prometheus.Gauge
	GlobalTransitions  prometheus.Histogram
	GuardedTransitions prometheus.Histogram
	UnmatchedTotal     prometheus.Counter
	OracleQueriesTotal *prometheus.CounterVec
	OracleDuration     *prometheus.HistogramVec
	SimulationSteps    prometheus.Counter
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	sizes := prometheus.ExponentialBuckets(1, 4, 8)

	return &Metrics{
		JobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "popsafe_jobs_total",
			Help: "Analysis jobs finished, by verdict (safe, unsafe, inconclusive, failed)",
		}, []string{"verdict"}),
		JobsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "popsafe_jobs_in_flight",
			Help: "Analysis jobs currently running",
		}),
		GlobalTransitions: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "popsafe_global_transitions",
			Help:    "Global transitions produced per composition",
			Buckets: sizes,
		}),
		GuardedTransitions: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "popsafe_guarded_transitions",
			Help:    "Guarded transitions in each generated counter system",
			Buckets: sizes,
		}),
		UnmatchedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "popsafe_unmatched_synchronizations_total",
			Help: "Expansions discarded because an occurrence had no local transition",
		}),
		OracleQueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "popsafe_oracle_queries_total",
			Help: "Reachability oracle queries by oracle and status",
		}, []string{"oracle", "status"}),
		OracleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "popsafe_oracle_duration_seconds",
			Help:    "Duration of reachability oracle queries",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"oracle"}),
		SimulationSteps: f.NewCounter(prometheus.CounterOpts{
			Name: "popsafe_simulation_steps_total",
			Help: "Transitions fired by the simulator",
		}),
	}
}

// Telemetry is the tracer and metrics pair handed to components.
type Telemetry struct {
	Tracer  trace.Tracer
	Metrics *Metrics
}

// New builds a Telemetry from a registerer and a tracer provider. A nil
// provider disables tracing.
func New(reg prometheus.Registerer, tp trace.TracerProvider) *Telemetry {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Telemetry{
		Tracer:  tp.Tracer(InstrumentationName),
		Metrics: NewMetrics(reg),
	}
}

// Nop returns a Telemetry backed by a private registry and a no-op
// tracer.
func Nop() *Telemetry {
	return New(prometheus.NewRegistry(), nil)
}

// Start opens a span. The caller ends it, usually through End.
func (t *Telemetry) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
