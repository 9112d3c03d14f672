// Copyright 2025 Kadir Pekel
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

package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the Prometheus-backed Recorder.
type Metrics struct {
	config   *Config
	registry *prometheus.Registry

	executionsStarted   *prometheus.CounterVec
	executionsCompleted *prometheus.CounterVec
	executionsFailed    *prometheus.CounterVec
	executionsAbandoned *prometheus.CounterVec
	executionsActive    *prometheus.GaugeVec

	stepDuration *prometheus.HistogramVec
	stepFailures *prometheus.CounterVec

	tokensGenerated *prometheus.CounterVec
	tokenOutcomes   *prometheus.CounterVec
}

// NewMetrics builds a Metrics instance from cfg. A nil or disabled cfg
// returns (nil, nil); every Recorder method is a safe no-op on a nil
// *Metrics receiver, mirroring Prometheus's own nil-labeled-vec
// tolerance.
func NewMetrics(cfg *Config) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()

	m := &Metrics{config: cfg, registry: prometheus.NewRegistry()}

	m.executionsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "execution", Name: "started_total",
		Help: "Total number of workflow executions started.",
	}, []string{"workflow_name"})

	m.executionsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "execution", Name: "completed_total",
		Help: "Total number of workflow executions that reached a completed state.",
	}, []string{"workflow_name"})

	m.executionsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "execution", Name: "failed_total",
		Help: "Total number of workflow executions that reached a failed or diverged state.",
	}, []string{"workflow_name", "reason"})

	m.executionsAbandoned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "execution", Name: "abandoned_total",
		Help: "Total number of workflow executions abandoned administratively.",
	}, []string{"workflow_name"})

	m.executionsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: cfg.Namespace, Subsystem: "execution", Name: "active",
		Help: "Number of executions currently in the running state.",
	}, []string{"workflow_name"})

	m.stepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace, Subsystem: "step", Name: "duration_seconds",
		Help:    "Time between a step's token being issued and its completion.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to 8192s (~2.3h)
	}, []string{"workflow_name", "phase", "agent_name"})

	m.stepFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "step", Name: "failures_total",
		Help: "Total number of step-completion attempts that errored.",
	}, []string{"workflow_name", "phase"})

	m.tokensGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "token", Name: "generated_total",
		Help: "Total number of continuation tokens issued, including reissues.",
	}, []string{"workflow_name", "phase"})

	m.tokenOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "token", Name: "validation_total",
		Help: "Continuation token validation outcomes.",
	}, []string{"outcome"})

	m.registry.MustRegister(
		m.executionsStarted, m.executionsCompleted, m.executionsFailed,
		m.executionsAbandoned, m.executionsActive,
		m.stepDuration, m.stepFailures,
		m.tokensGenerated, m.tokenOutcomes,
	)

	return m, nil
}

// RecordExecutionStarted records a new execution entering the running state.
func (m *Metrics) RecordExecutionStarted(workflowName string) {
	if m == nil {
		return
	}
	m.executionsStarted.WithLabelValues(workflowName).Inc()
	m.executionsActive.WithLabelValues(workflowName).Inc()
}

// RecordExecutionCompleted records an execution reaching its terminal
// completed state.
func (m *Metrics) RecordExecutionCompleted(workflowName string) {
	if m == nil {
		return
	}
	m.executionsCompleted.WithLabelValues(workflowName).Inc()
	m.executionsActive.WithLabelValues(workflowName).Dec()
}

// RecordExecutionFailed records an execution reaching a failed or
// diverged state, labeled by the apperr reason that caused it.
func (m *Metrics) RecordExecutionFailed(workflowName, reason string) {
	if m == nil {
		return
	}
	m.executionsFailed.WithLabelValues(workflowName, reason).Inc()
	m.executionsActive.WithLabelValues(workflowName).Dec()
}

// RecordExecutionAbandoned records an execution cancelled via the
// administrative abandon tool.
func (m *Metrics) RecordExecutionAbandoned(workflowName string) {
	if m == nil {
		return
	}
	m.executionsAbandoned.WithLabelValues(workflowName).Inc()
	m.executionsActive.WithLabelValues(workflowName).Dec()
}

// RecordStepDuration records how long a step ran between token issuance
// and completion.
func (m *Metrics) RecordStepDuration(workflowName, phase, agentName string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(workflowName, phase, agentName).Observe(d.Seconds())
}

// RecordStepFailure records a step-completion attempt that errored
// before or during the transaction.
func (m *Metrics) RecordStepFailure(workflowName, phase string) {
	if m == nil {
		return
	}
	m.stepFailures.WithLabelValues(workflowName, phase).Inc()
}

// RecordTokenGenerated records a continuation token being minted, via
// either the normal advance path or an administrative reissue.
func (m *Metrics) RecordTokenGenerated(workflowName, phase string) {
	if m == nil {
		return
	}
	m.tokensGenerated.WithLabelValues(workflowName, phase).Inc()
}

// RecordTokenValidation records the outcome of validating a presented
// continuation token: one of "valid", "expired", "malformed", or
// "stale" (current_step no longer matches).
func (m *Metrics) RecordTokenValidation(outcome string) {
	if m == nil {
		return
	}
	m.tokenOutcomes.WithLabelValues(outcome).Inc()
}

// Handler returns an HTTP handler serving this registry's metrics in
// the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
