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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_DisabledReturnsNil(t *testing.T) {
	m, err := NewMetrics(&Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	if m != nil {
		t.Fatalf("NewMetrics(disabled) = %v, want nil", m)
	}
	// Nil receiver methods must not panic.
	m.RecordExecutionStarted("demo")
	m.RecordStepDuration("demo", "plan", "planner", time.Second)
}

func TestMetrics_RecordExecutionLifecycle(t *testing.T) {
	m, err := NewMetrics(&Config{Enabled: true})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	if m == nil {
		t.Fatal("NewMetrics(enabled) = nil, want a Metrics instance")
	}

	m.RecordExecutionStarted("demo")
	m.RecordExecutionStarted("demo")
	m.RecordExecutionCompleted("demo")

	if got := testutil.ToFloat64(m.executionsStarted.WithLabelValues("demo")); got != 2 {
		t.Fatalf("executionsStarted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.executionsCompleted.WithLabelValues("demo")); got != 1 {
		t.Fatalf("executionsCompleted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.executionsActive.WithLabelValues("demo")); got != 1 {
		t.Fatalf("executionsActive = %v, want 1 (2 started - 1 completed)", got)
	}
}

func TestMetrics_RecordTokenValidation(t *testing.T) {
	m, err := NewMetrics(&Config{Enabled: true})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	m.RecordTokenValidation("valid")
	m.RecordTokenValidation("expired")
	m.RecordTokenValidation("valid")

	if got := testutil.ToFloat64(m.tokenOutcomes.WithLabelValues("valid")); got != 2 {
		t.Fatalf("tokenOutcomes[valid] = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.tokenOutcomes.WithLabelValues("expired")); got != 1 {
		t.Fatalf("tokenOutcomes[expired] = %v, want 1", got)
	}
}

func TestNoopRecorder_SatisfiesRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.RecordExecutionStarted("demo")
	r.RecordExecutionCompleted("demo")
	r.RecordExecutionFailed("demo", "token_expired")
	r.RecordExecutionAbandoned("demo")
	r.RecordStepDuration("demo", "plan", "planner", time.Second)
	r.RecordStepFailure("demo", "plan")
	r.RecordTokenGenerated("demo", "plan")
	r.RecordTokenValidation("valid")
}
