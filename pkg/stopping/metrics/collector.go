// Copyright 2025 The llm-d Authors.
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

package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// TableBuilds counts alignment-table builds, i.e. table-cache misses
	// that ran the precomputation.
	TableBuilds = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stopping", Subsystem: "tables", Name: "builds_total",
		Help: "Total number of stop-string alignment tables built",
	})
	// BuildLatency logs latency of alignment-table builds.
	BuildLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stopping", Subsystem: "tables", Name: "build_latency_seconds",
		Help:    "Latency of alignment-table builds in seconds",
		Buckets: prometheus.DefBuckets,
	})
	// CacheHits counts table-cache lookups served from the cache.
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stopping", Subsystem: "tables", Name: "cache_hits_total",
		Help: "Number of table lookups served from the cache",
	})
	// CacheMisses counts table-cache lookups that required a build.
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stopping", Subsystem: "tables", Name: "cache_misses_total",
		Help: "Number of table lookups that required a build",
	})

	// Evaluations counts how many Evaluate() calls have been made.
	Evaluations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stopping", Subsystem: "criteria", Name: "evaluations_total",
		Help: "Total number of stopping evaluations",
	})
	// EvaluateLatency logs latency of Evaluate calls.
	EvaluateLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stopping", Subsystem: "criteria", Name: "evaluate_latency_seconds",
		Help:    "Latency of stopping evaluations in seconds",
		Buckets: prometheus.DefBuckets,
	})
	// StoppedSequences counts sequences whose verdict was to stop.
	StoppedSequences = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stopping", Subsystem: "criteria", Name: "stopped_sequences_total",
		Help: "Number of sequences told to stop generating",
	})
)

// Collectors returns a slice of all registered Prometheus collectors.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		TableBuilds, BuildLatency,
		CacheHits, CacheMisses,
		Evaluations, EvaluateLatency, StoppedSequences,
	}
}

var registerMetricsOnce = sync.Once{}

// Register registers all metrics with K8s registry.
func Register() {
	registerMetricsOnce.Do(func() {
		metrics.Registry.MustRegister(Collectors()...)
	})
}

// StartMetricsLogging spawns a goroutine that logs current metric values every
// interval.
func StartMetricsLogging(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			logMetrics(ctx)
		}
	}()
}

func logMetrics(ctx context.Context) {
	var m dto.Metric

	err := TableBuilds.Write(&m)
	if err != nil {
		return
	}
	builds := m.GetCounter().GetValue()

	err = CacheHits.Write(&m)
	if err != nil {
		return
	}
	hits := m.GetCounter().GetValue()

	err = CacheMisses.Write(&m)
	if err != nil {
		return
	}
	misses := m.GetCounter().GetValue()

	err = Evaluations.Write(&m)
	if err != nil {
		return
	}
	evaluations := m.GetCounter().GetValue()

	var stoppedMetric dto.Metric
	err = StoppedSequences.Write(&stoppedMetric)
	if err != nil {
		return
	}
	stopped := stoppedMetric.GetCounter().GetValue()

	var latencyMetric dto.Metric
	err = EvaluateLatency.Write(&latencyMetric)
	if err != nil {
		return
	}
	latencyCount := latencyMetric.GetHistogram().GetSampleCount()
	latencySum := latencyMetric.GetHistogram().GetSampleSum()

	klog.FromContext(ctx).WithName("metrics").Info("metrics beat",
		"tableBuilds", builds,
		"cacheHits", hits,
		"cacheMisses", misses,
		"evaluations", evaluations,
		"stoppedSequences", stopped,
		"evaluateLatencyCount", latencyCount,
		"evaluateLatencySum", latencySum,
	)
}
