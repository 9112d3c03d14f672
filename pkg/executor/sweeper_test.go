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

package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stepflow-dev/stepflow/pkg/statemachine"
	"github.com/stepflow-dev/stepflow/pkg/store"
)

func TestSweeper_SweepOnce_FailsTimedOutExecutions(t *testing.T) {
	exec, s := newTestExecutor(t)
	def := demoDefinition()

	start, err := exec.Start(context.Background(), def, "exec-timeout")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	_ = start

	// Start set timeout_ms=nil by default; set a short timeout directly
	// so the sweeper has a candidate.
	if _, err := s.DB().Exec(`UPDATE executions SET timeout_ms = 1000 WHERE execution_id = ?`, "exec-timeout"); err != nil {
		t.Fatalf("setting timeout_ms error = %v", err)
	}

	machine := statemachine.New(s, nil)
	sweeper := NewSweeper(s, machine, time.Second, nil)
	sweeper.now = func() time.Time {
		return time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC)
	}

	if err := sweeper.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}

	got, err := s.GetExecution(context.Background(), "exec-timeout")
	if err != nil {
		t.Fatalf("GetExecution() error = %v", err)
	}
	if got.State != store.ExecutionFailed {
		t.Fatalf("State = %v, want failed", got.State)
	}
}

func TestSweeper_SweepOnce_IgnoresExecutionsWithinTimeout(t *testing.T) {
	exec, s := newTestExecutor(t)
	def := demoDefinition()

	if _, err := exec.Start(context.Background(), def, "exec-ontime"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := s.DB().Exec(`UPDATE executions SET timeout_ms = 1000000 WHERE execution_id = ?`, "exec-ontime"); err != nil {
		t.Fatalf("setting timeout_ms error = %v", err)
	}

	machine := statemachine.New(s, nil)
	sweeper := NewSweeper(s, machine, time.Second, nil)
	sweeper.now = func() time.Time {
		return time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC)
	}

	if err := sweeper.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}

	got, err := s.GetExecution(context.Background(), "exec-ontime")
	if err != nil {
		t.Fatalf("GetExecution() error = %v", err)
	}
	if got.State != store.ExecutionRunning {
		t.Fatalf("State = %v, want running (not timed out)", got.State)
	}
}
