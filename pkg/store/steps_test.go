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

package store

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
)

func TestInsertRunningStep_DuplicateStepNameFails(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustCreateExecution(t, s, "exec-step-dup", "demo", now)

	err := s.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		_, err := InsertRunningStep(context.Background(), tx, "exec-step-dup", "plan", "planner", "tok-1", now)
		return err
	})
	if err != nil {
		t.Fatalf("first InsertRunningStep() error = %v", err)
	}

	err = s.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		_, err := InsertRunningStep(context.Background(), tx, "exec-step-dup", "plan", "planner", "tok-2", now)
		return err
	})
	if apperr.ReasonOf(err) != apperr.ReasonDuplicateStep {
		t.Fatalf("expected ReasonDuplicateStep, got %v (err=%v)", apperr.ReasonOf(err), err)
	}
}

func TestCompleteStep_ClearsToken(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustCreateExecution(t, s, "exec-step-complete", "demo", now)

	var stepID int64
	err := s.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		step, err := InsertRunningStep(context.Background(), tx, "exec-step-complete", "plan", "planner", "tok-1", now)
		if err != nil {
			return err
		}
		stepID = step.ID
		return nil
	})
	if err != nil {
		t.Fatalf("setup error = %v", err)
	}

	err = s.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		return CompleteStep(context.Background(), tx, stepID, now.Add(time.Minute), 60_000, "done")
	})
	if err != nil {
		t.Fatalf("CompleteStep() error = %v", err)
	}

	steps, err := s.ListStepHistory(context.Background(), "exec-step-complete")
	if err != nil {
		t.Fatalf("ListStepHistory() error = %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}
	if steps[0].Token != nil {
		t.Fatal("expected token to be cleared after CompleteStep, token is single-use")
	}
	if steps[0].Status != StepCompleted {
		t.Fatalf("Status = %v, want completed", steps[0].Status)
	}
}

func TestFailStep_ClearsToken(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustCreateExecution(t, s, "exec-step-fail", "demo", now)

	var stepID int64
	err := s.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		step, err := InsertRunningStep(context.Background(), tx, "exec-step-fail", "plan", "planner", "tok-1", now)
		if err != nil {
			return err
		}
		stepID = step.ID
		return nil
	})
	if err != nil {
		t.Fatalf("setup error = %v", err)
	}

	err = s.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		return FailStep(context.Background(), tx, stepID, now.Add(time.Minute), "boom")
	})
	if err != nil {
		t.Fatalf("FailStep() error = %v", err)
	}

	step, err := GetRunningStepTxHelper(t, s, "exec-step-fail", "plan")
	if err != nil {
		t.Fatalf("GetRunningStepTxHelper() error = %v", err)
	}
	if step.Token != nil {
		t.Fatal("expected token to be cleared after FailStep")
	}
	if step.Status != StepFailed {
		t.Fatalf("Status = %v, want failed", step.Status)
	}
}

func TestCountStepsByStatus(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustCreateExecution(t, s, "exec-step-counts", "demo", now)

	err := s.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		if _, err := InsertRunningStep(context.Background(), tx, "exec-step-counts", "plan", "planner", "tok-1", now); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("setup error = %v", err)
	}

	counts, err := s.CountStepsByStatus(context.Background(), "exec-step-counts")
	if err != nil {
		t.Fatalf("CountStepsByStatus() error = %v", err)
	}
	if counts[StepRunning] != 1 {
		t.Fatalf("counts[running] = %d, want 1", counts[StepRunning])
	}
}

// GetRunningStepTxHelper wraps GetRunningStepTx in its own transaction for
// tests that only need a read after the write transaction has committed.
func GetRunningStepTxHelper(t *testing.T, s *Store, executionID, stepName string) (*Step, error) {
	t.Helper()
	var step *Step
	err := s.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		var err error
		step, err = GetRunningStepTx(context.Background(), tx, executionID, stepName)
		return err
	})
	return step, err
}
