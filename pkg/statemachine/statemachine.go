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

// Package statemachine owns execution-row creation and the legal
// execution-state transition table (C3). The Tx-suffixed functions never
// open their own transaction — callers that need create-and-transition
// to commit atomically with other writes drive them through an
// already-open *sqlx.Tx — while the single-operation Machine methods
// open their own transaction for standalone use.
package statemachine

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
	"github.com/stepflow-dev/stepflow/pkg/store"
)

// legalTransitions is the adjacency list of allowed state changes. A
// state absent from this map (every terminal state) has no legal
// outbound transition.
var legalTransitions = map[store.ExecutionState][]store.ExecutionState{
	store.ExecutionIdle: {store.ExecutionRunning},
	store.ExecutionRunning: {
		store.ExecutionCompleted,
		store.ExecutionFailed,
		store.ExecutionPaused,
		store.ExecutionAbandoned,
		store.ExecutionDiverged,
	},
	store.ExecutionPaused: {
		store.ExecutionRunning,
		store.ExecutionAbandoned,
	},
}

// IsLegalTransition reports whether moving from 'from' to 'to' is allowed.
func IsLegalTransition(from, to store.ExecutionState) bool {
	for _, candidate := range legalTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Machine wraps a Store with the state-transition policy and telemetry
// emission that every caller (the step executor, administrative tools,
// the sweeper) must go through rather than writing to the executions
// table directly.
type Machine struct {
	store  *store.Store
	logger *slog.Logger
}

// New constructs a Machine over s. A nil logger defaults to slog.Default().
func New(s *store.Store, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{store: s, logger: logger}
}

// Create inserts a new execution in state 'idle' and emits
// workflow_created. Fails with ReasonDuplicateExecutionID on id collision.
func (m *Machine) Create(ctx context.Context, workflowName, executionID string, now time.Time) (*store.Execution, error) {
	var exec *store.Execution
	err := m.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		exec, err = CreateTx(ctx, tx, workflowName, executionID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.store.Emit(ctx, m.logger, store.EventWorkflowCreated, &executionID, nil, nil, nil)
	return exec, nil
}

// CreateTx is the transactional primitive behind Create, for callers
// (the step executor's Start operation) that need execution creation to
// commit atomically with the first step insert.
func CreateTx(ctx context.Context, tx *sqlx.Tx, workflowName, executionID string, now time.Time) (*store.Execution, error) {
	return store.CreateExecution(ctx, tx, executionID, workflowName, now)
}

// Transition verifies the requested state change is legal, applies it,
// and emits workflow_state_transition. durationMs must be supplied (and
// non-nil) iff newState is terminal; the caller computes it from the
// execution's started_at since the portable arithmetic lives in Go, not
// SQL.
func (m *Machine) Transition(ctx context.Context, executionID string, newState store.ExecutionState, currentStep *string, now time.Time, durationMs *int64) error {
	exec, err := m.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec == nil {
		return apperr.New(apperr.KindState, "execution %s not found", executionID).
			WithReason(apperr.ReasonExecutionNotFound)
	}

	oldState := exec.State
	if !IsLegalTransition(oldState, newState) {
		return apperr.New(apperr.KindState, "cannot transition execution %s from %s to %s", executionID, oldState, newState).
			WithReason(apperr.ReasonInvalidTransition)
	}

	err = m.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return store.TransitionExecution(ctx, tx, executionID, newState, currentStep, now, durationMs)
	})
	if err != nil {
		return err
	}

	m.store.Emit(ctx, m.logger, store.EventWorkflowStateTransition, &executionID, currentStep, nil,
		transitionMetadata(oldState, newState))
	return nil
}

// TransitionTx is the transactional primitive behind Transition, for
// callers that already hold an open write transaction (the step
// executor's Continue operation, which must advance the execution and
// complete/insert steps atomically). It does not emit telemetry itself —
// the caller emits step-level events within the same transaction, and
// any state-transition event it needs, through store.EmitTx.
func TransitionTx(ctx context.Context, tx *sqlx.Tx, exec *store.Execution, newState store.ExecutionState, currentStep *string, now time.Time, durationMs *int64) error {
	if !IsLegalTransition(exec.State, newState) {
		return apperr.New(apperr.KindState, "cannot transition execution %s from %s to %s", exec.ExecutionID, exec.State, newState).
			WithReason(apperr.ReasonInvalidTransition)
	}
	return store.TransitionExecution(ctx, tx, exec.ExecutionID, newState, currentStep, now, durationMs)
}

// Get loads a single execution, or (nil, nil) if absent.
func (m *Machine) Get(ctx context.Context, executionID string) (*store.Execution, error) {
	return m.store.GetExecution(ctx, executionID)
}

// ListByWorkflow returns every execution for the given workflow name.
func (m *Machine) ListByWorkflow(ctx context.Context, workflowName string) ([]store.Execution, error) {
	return m.store.ListExecutionsByWorkflow(ctx, workflowName)
}

// ListByState returns every execution currently in the given state.
func (m *Machine) ListByState(ctx context.Context, state store.ExecutionState) ([]store.Execution, error) {
	return m.store.ListExecutionsByState(ctx, state)
}

func transitionMetadata(oldState, newState store.ExecutionState) *string {
	payload := `{"old_state":"` + string(oldState) + `","new_state":"` + string(newState) + `"}`
	return &payload
}
