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
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
)

// CreateExecution inserts a new execution row with state='idle' and
// current_step=null, inside tx. Fails with ReasonDuplicateExecutionID on
// id collision.
func CreateExecution(ctx context.Context, tx *sqlx.Tx, executionID, workflowName string, now time.Time) (*Execution, error) {
	exec := &Execution{
		ExecutionID:  executionID,
		WorkflowName: workflowName,
		State:        ExecutionIdle,
		StartedAt:    now,
		UpdatedAt:    now,
	}

	_, err := tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO executions (execution_id, workflow_name, state, current_step, started_at, updated_at)
		 VALUES (?, ?, ?, NULL, ?, ?)`),
		exec.ExecutionID, exec.WorkflowName, exec.State, exec.StartedAt, exec.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindState, err, "execution %s already exists", executionID).
				WithReason(apperr.ReasonDuplicateExecutionID)
		}
		return nil, apperr.Wrap(apperr.KindStore, err, "store: inserting execution %s", executionID)
	}
	return exec, nil
}

// TransitionExecution updates state/current_step/updated_at for
// executionID inside tx. On a terminal transition the caller supplies
// durationMs (computed in Go from the execution's started_at, so the
// arithmetic stays portable across dialects instead of relying on a
// dialect-specific date function), and completed_at is set to now. The
// caller is responsible for verifying the transition is legal before
// calling this (pkg/statemachine owns that policy); this function only
// performs the write.
func TransitionExecution(ctx context.Context, tx *sqlx.Tx, executionID string, newState ExecutionState, currentStep *string, now time.Time, durationMs *int64) error {
	if newState.IsTerminal() {
		_, err := tx.ExecContext(ctx, tx.Rebind(
			`UPDATE executions
			 SET state = ?, current_step = ?, updated_at = ?, completed_at = ?, duration_ms = ?
			 WHERE execution_id = ?`),
			newState, currentStep, now, now, durationMs, executionID,
		)
		if err != nil {
			return apperr.Wrap(apperr.KindStore, err, "store: transitioning execution %s to %s", executionID, newState)
		}
		return nil
	}

	_, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE executions SET state = ?, current_step = ?, updated_at = ? WHERE execution_id = ?`),
		newState, currentStep, now, executionID,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "store: transitioning execution %s to %s", executionID, newState)
	}
	return nil
}

// GetExecution loads a single execution row, or (nil, nil) if absent.
func (s *Store) GetExecution(ctx context.Context, executionID string) (*Execution, error) {
	var exec Execution
	err := s.db.GetContext(ctx, &exec, s.rebind(
		`SELECT execution_id, workflow_name, state, current_step, started_at, updated_at,
		        completed_at, duration_ms, timeout_ms, project_id, metadata
		 FROM executions WHERE execution_id = ?`),
		executionID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "store: loading execution %s", executionID)
	}
	return &exec, nil
}

// GetExecutionTx loads a single execution row inside an in-flight
// transaction, used by the step executor so the read and the subsequent
// write are part of the same atomic operation.
func GetExecutionTx(ctx context.Context, tx *sqlx.Tx, executionID string) (*Execution, error) {
	var exec Execution
	err := tx.GetContext(ctx, &exec, tx.Rebind(
		`SELECT execution_id, workflow_name, state, current_step, started_at, updated_at,
		        completed_at, duration_ms, timeout_ms, project_id, metadata
		 FROM executions WHERE execution_id = ?`),
		executionID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "store: loading execution %s", executionID)
	}
	return &exec, nil
}

// ListExecutionsByWorkflow returns every execution for the given
// workflow name, most recently started first.
func (s *Store) ListExecutionsByWorkflow(ctx context.Context, workflowName string) ([]Execution, error) {
	var execs []Execution
	err := s.db.SelectContext(ctx, &execs, s.rebind(
		`SELECT execution_id, workflow_name, state, current_step, started_at, updated_at,
		        completed_at, duration_ms, timeout_ms, project_id, metadata
		 FROM executions WHERE workflow_name = ? ORDER BY started_at DESC`),
		workflowName,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "store: listing executions for workflow %s", workflowName)
	}
	return execs, nil
}

// ListExecutionsByState returns every execution currently in state.
func (s *Store) ListExecutionsByState(ctx context.Context, state ExecutionState) ([]Execution, error) {
	var execs []Execution
	err := s.db.SelectContext(ctx, &execs, s.rebind(
		`SELECT execution_id, workflow_name, state, current_step, started_at, updated_at,
		        completed_at, duration_ms, timeout_ms, project_id, metadata
		 FROM executions WHERE state = ? ORDER BY started_at DESC`),
		state,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "store: listing executions in state %s", state)
	}
	return execs, nil
}

// ListTimedOutRunning returns executions stuck in 'running' whose
// timeout_ms has elapsed relative to started_at — the advisory sweeper's
// source query. The elapsed-time comparison is done in Go, not SQL, to
// stay portable across dialects.
func (s *Store) ListTimedOutRunning(ctx context.Context, asOf time.Time) ([]Execution, error) {
	var candidates []Execution
	err := s.db.SelectContext(ctx, &candidates, s.rebind(
		`SELECT execution_id, workflow_name, state, current_step, started_at, updated_at,
		        completed_at, duration_ms, timeout_ms, project_id, metadata
		 FROM executions WHERE state = 'running' AND timeout_ms IS NOT NULL`),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "store: scanning for timed-out executions")
	}

	var timedOut []Execution
	for _, exec := range candidates {
		if exec.TimeoutMs == nil {
			continue
		}
		elapsed := asOf.Sub(exec.StartedAt).Milliseconds()
		if elapsed > *exec.TimeoutMs {
			timedOut = append(timedOut, exec)
		}
	}
	return timedOut, nil
}

// DeleteExecution removes executionID and, via ON DELETE CASCADE, every
// dependent step and artifact row (testable property 6: FK cascade).
// Telemetry and knowledge findings are not FK-bound to executions and
// outlive them by design.
func (s *Store) DeleteExecution(ctx context.Context, executionID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM executions WHERE execution_id = ?`), executionID)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "store: deleting execution %s", executionID)
	}
	return nil
}
