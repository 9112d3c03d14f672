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

// InsertRunningStep inserts the next step row with status='running',
// started_at=now, and the freshly-issued token, inside tx. Fails with
// ReasonDuplicateStep on a (execution_id, step_name) collision — two
// steps with the same name within one execution.
func InsertRunningStep(ctx context.Context, tx *sqlx.Tx, executionID, stepName, agentName, token string, now time.Time) (*Step, error) {
	step := &Step{
		ExecutionID: executionID,
		StepName:    stepName,
		AgentName:   agentName,
		Status:      StepRunning,
		StartedAt:   now,
		Token:       &token,
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO steps (execution_id, step_name, agent_name, status, started_at, token)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		step.ExecutionID, step.StepName, step.AgentName, step.Status, step.StartedAt, step.Token,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindState, err, "step %s already exists for execution %s", stepName, executionID).
				WithReason(apperr.ReasonDuplicateStep)
		}
		return nil, apperr.Wrap(apperr.KindStore, err, "store: inserting step %s for execution %s", stepName, executionID)
	}

	if id, err := res.LastInsertId(); err == nil {
		step.ID = id
	}
	return step, nil
}

// GetRunningStepTx loads the step (execution_id, step_name) inside tx.
// Returns (nil, nil) if absent.
func GetRunningStepTx(ctx context.Context, tx *sqlx.Tx, executionID, stepName string) (*Step, error) {
	var step Step
	err := tx.GetContext(ctx, &step, tx.Rebind(
		`SELECT id, execution_id, step_name, agent_name, status, started_at, completed_at, duration_ms, output, token
		 FROM steps WHERE execution_id = ? AND step_name = ?`),
		executionID, stepName,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "store: loading step %s for execution %s", stepName, executionID)
	}
	return &step, nil
}

// GetStep loads the step (execution_id, step_name) outside any
// transaction, for read-only projections that don't need writer
// serialization. Returns (nil, nil) if absent.
func (s *Store) GetStep(ctx context.Context, executionID, stepName string) (*Step, error) {
	var step Step
	err := s.db.GetContext(ctx, &step, s.rebind(
		`SELECT id, execution_id, step_name, agent_name, status, started_at, completed_at, duration_ms, output, token
		 FROM steps WHERE execution_id = ? AND step_name = ?`),
		executionID, stepName,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "store: loading step %s for execution %s", stepName, executionID)
	}
	return &step, nil
}

// ReissueToken replaces the running step's token inside tx — the
// administrative path for a caller that lost its continuation token
// without the execution having moved on. Fails with
// ReasonInvalidStepStatus if the step is not currently running.
func ReissueToken(ctx context.Context, tx *sqlx.Tx, executionID, stepName, newToken string) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE steps SET token = ? WHERE execution_id = ? AND step_name = ? AND status = ?`),
		newToken, executionID, stepName, StepRunning,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "store: reissuing token for %s/%s", executionID, stepName)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "store: confirming token reissue for %s/%s", executionID, stepName)
	}
	if affected == 0 {
		return apperr.New(apperr.KindState, "step %s is not running", stepName).WithReason(apperr.ReasonInvalidStepStatus)
	}
	return nil
}

// CompleteStep marks the step identified by id as completed inside tx:
// status='completed', completed_at=now, duration_ms, output serialized,
// token cleared (single-use: the token can never again pass the
// executor's current-step cross-check once the step is no longer
// running).
func CompleteStep(ctx context.Context, tx *sqlx.Tx, stepID int64, now time.Time, durationMs int64, output string) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE steps SET status = ?, completed_at = ?, duration_ms = ?, output = ?, token = NULL WHERE id = ?`),
		StepCompleted, now, durationMs, output, stepID,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "store: completing step %d", stepID)
	}
	return nil
}

// FailStep marks the step identified by id as failed inside tx, clearing
// its token so a failed step's token cannot be replayed.
func FailStep(ctx context.Context, tx *sqlx.Tx, stepID int64, now time.Time, errMessage string) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE steps SET status = ?, completed_at = ?, output = ?, token = NULL WHERE id = ?`),
		StepFailed, now, errMessage, stepID,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "store: failing step %d", stepID)
	}
	return nil
}

// ListStepHistory returns every step for executionID ordered by
// insertion (auto id), the ordering guarantee the step_history
// projection depends on.
func (s *Store) ListStepHistory(ctx context.Context, executionID string) ([]Step, error) {
	var steps []Step
	err := s.db.SelectContext(ctx, &steps, s.rebind(
		`SELECT id, execution_id, step_name, agent_name, status, started_at, completed_at, duration_ms, output, token
		 FROM steps WHERE execution_id = ? ORDER BY id ASC`),
		executionID,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "store: listing steps for execution %s", executionID)
	}
	return steps, nil
}

// CountStepsByStatus returns the count of steps in each status for
// executionID, used by the workflow_status projection's steps summary.
func (s *Store) CountStepsByStatus(ctx context.Context, executionID string) (map[StepStatus]int, error) {
	type row struct {
		Status StepStatus `db:"status"`
		Count  int        `db:"count"`
	}
	var rows []row
	err := s.db.SelectContext(ctx, &rows, s.rebind(
		`SELECT status, COUNT(*) AS count FROM steps WHERE execution_id = ? GROUP BY status`),
		executionID,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "store: counting steps for execution %s", executionID)
	}

	counts := make(map[StepStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
