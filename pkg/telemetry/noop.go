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
)

// Recorder is the metrics surface the executor depends on. It lets
// pkg/executor take a Recorder without importing Prometheus directly,
// and lets tests inject a recording fake.
type Recorder interface {
	RecordExecutionStarted(workflowName string)
	RecordExecutionCompleted(workflowName string)
	RecordExecutionFailed(workflowName, reason string)
	RecordExecutionAbandoned(workflowName string)

	RecordStepDuration(workflowName, phase, agentName string, d time.Duration)
	RecordStepFailure(workflowName, phase string)

	RecordTokenGenerated(workflowName, phase string)
	RecordTokenValidation(outcome string)
}

// NoopRecorder discards every call. Use it when metrics collection is
// disabled.
type NoopRecorder struct{}

func (NoopRecorder) RecordExecutionStarted(string)                          {}
func (NoopRecorder) RecordExecutionCompleted(string)                        {}
func (NoopRecorder) RecordExecutionFailed(string, string)                   {}
func (NoopRecorder) RecordExecutionAbandoned(string)                        {}
func (NoopRecorder) RecordStepDuration(string, string, string, time.Duration) {}
func (NoopRecorder) RecordStepFailure(string, string)                       {}
func (NoopRecorder) RecordTokenGenerated(string, string)                    {}
func (NoopRecorder) RecordTokenValidation(string)                           {}

// Handler returns a 503 handler, matching Metrics.Handler's behavior
// when metrics are disabled.
func (NoopRecorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("metrics not enabled"))
	})
}

var (
	_ Recorder = (*Metrics)(nil)
	_ Recorder = NoopRecorder{}
)
