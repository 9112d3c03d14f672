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

// Package executor is the write core of the orchestrator (C4): Start and
// Continue operations that bind the state machine (C3), the step table,
// and the token codec (C1) together inside a single Store transaction so
// "complete step + advance phase + issue token" is always atomic.
package executor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
	"github.com/stepflow-dev/stepflow/pkg/observability"
	"github.com/stepflow-dev/stepflow/pkg/statemachine"
	"github.com/stepflow-dev/stepflow/pkg/store"
	"github.com/stepflow-dev/stepflow/pkg/telemetry"
	"github.com/stepflow-dev/stepflow/pkg/token"
	"github.com/stepflow-dev/stepflow/pkg/workflow"
)

var tracer = observability.GetTracer("stepflow/executor")

// Clock abstracts time.Now so tests can control started_at/completed_at
// math without sleeping.
type Clock func() time.Time

// Output is the envelope a caller submits when completing a step.
type Output struct {
	Summary                string           `json:"summary" jsonschema:"required,description=Human-readable summary of what the step accomplished"`
	Artifacts              []OutputArtifact `json:"artifacts,omitempty" jsonschema:"description=Artifacts produced during the step"`
	Findings               []OutputFinding  `json:"findings,omitempty" jsonschema:"description=Candidate knowledge findings for later review"`
	NextStepRecommendation string           `json:"next_step_recommendation,omitempty" jsonschema:"description=Optional hint for the step that should follow"`
	SuggestedFindings      []OutputFinding  `json:"suggested_findings,omitempty" jsonschema:"description=Findings to persist immediately rather than hold for review"`
}

// OutputArtifact is one artifact produced during the completed step.
type OutputArtifact struct {
	ArtifactType store.ArtifactType `json:"artifact_type"`
	Name         string             `json:"name"`
	Content      string             `json:"content"`
	ContentType  store.ContentType  `json:"content_type"`
	Metadata     *string            `json:"metadata,omitempty"`
}

// OutputFinding is a candidate knowledge finding surfaced from a step.
// SuggestedFindings is a lightweight capture path: the tools layer
// persists each entry right after a successful Continue, outside this
// transaction, since knowledge findings are independent of step state.
type OutputFinding struct {
	Scope    store.FindingScope    `json:"scope"`
	Category store.FindingCategory `json:"category"`
	Severity store.FindingSeverity `json:"severity"`
	Title    string                `json:"title"`
	Content  string                `json:"content"`
}

// StartResult is returned by Start.
type StartResult struct {
	ExecutionID    string `json:"execution_id"`
	StepName       string `json:"step_name"`
	AgentName      string `json:"agent_name"`
	WorkflowState  string `json:"workflow_state"`
	NewToken       string `json:"new_token"`
}

// ContinueResult is returned by Continue.
type ContinueResult struct {
	WorkflowState string `json:"workflow_state"`
	StepName      string `json:"step_name,omitempty"`
	AgentName     string `json:"agent_name,omitempty"`
	NewToken      string `json:"new_token,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Executor wires the Store, Machine, and token Codec together.
type Executor struct {
	store    *store.Store
	machine  *statemachine.Machine
	codec    token.Codec
	logger   *slog.Logger
	now      Clock
	recorder telemetry.Recorder
}

// Option configures an Executor constructed by New.
type Option func(*Executor)

// WithClock overrides the time source; used by tests.
func WithClock(now Clock) Option {
	return func(e *Executor) { e.now = now }
}

// WithRecorder attaches a telemetry.Recorder; executions, step
// durations, and token outcomes are reported to it as they occur. A
// nil recorder (the default) discards every call.
func WithRecorder(recorder telemetry.Recorder) Option {
	return func(e *Executor) { e.recorder = recorder }
}

// New constructs an Executor. A nil logger defaults to slog.Default().
func New(s *store.Store, m *statemachine.Machine, codec token.Codec, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{store: s, machine: m, codec: codec, logger: logger, now: time.Now, recorder: telemetry.NoopRecorder{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins a new execution of def, inserting the execution and its
// first step, issuing the first continuation token, inside one
// transaction.
//
// Preconditions (checked before opening the transaction): workflowName
// and executionID non-empty, def has at least one eligible first phase,
// no existing execution with executionID.
func (e *Executor) Start(ctx context.Context, def *workflow.Definition, executionID string) (*StartResult, error) {
	ctx, span := tracer.Start(ctx, observability.SpanExecutorStart)
	defer span.End()

	if executionID == "" {
		return nil, apperr.New(apperr.KindInput, "executor: execution_id is required").WithReason(apperr.ReasonMalformed)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	first, ok := def.FirstPhase()
	if !ok {
		return nil, apperr.New(apperr.KindContent, "executor: workflow %s has no eligible first phase", def.Name)
	}

	if existing, err := e.store.GetExecution(ctx, executionID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apperr.New(apperr.KindState, "execution %s already exists", executionID).
			WithReason(apperr.ReasonDuplicateExecutionID)
	}

	newToken, err := e.codec.Generate(executionID, first.Phase)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	err = e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := statemachine.CreateTx(ctx, tx, def.Name, executionID, now); err != nil {
			return err
		}
		if _, err := store.InsertRunningStep(ctx, tx, executionID, first.Phase, first.Agent, newToken, now); err != nil {
			return err
		}
		currentStep := first.Phase
		if err := statemachine.TransitionTx(ctx, tx, &store.Execution{ExecutionID: executionID, State: store.ExecutionIdle}, store.ExecutionRunning, &currentStep, now, nil); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		e.store.Emit(ctx, e.logger, store.EventWorkflowFailed, &executionID, nil, nil, errMetadata(err))
		e.recorder.RecordExecutionFailed(def.Name, string(apperr.ReasonOf(err)))
		return nil, err
	}

	e.store.Emit(ctx, e.logger, store.EventWorkflowStarted, &executionID, nil, nil, nil)
	e.store.Emit(ctx, e.logger, store.EventStepStarted, &executionID, &first.Phase, &first.Agent, nil)
	e.store.Emit(ctx, e.logger, store.EventTokenGenerated, &executionID, &first.Phase, nil, nil)
	e.recorder.RecordExecutionStarted(def.Name)
	e.recorder.RecordTokenGenerated(def.Name, first.Phase)

	return &StartResult{
		ExecutionID:   executionID,
		StepName:      first.Phase,
		AgentName:     first.Agent,
		WorkflowState: string(store.ExecutionRunning),
		NewToken:      newToken,
	}, nil
}

// Continue completes the step bound to rawToken and either advances the
// execution to its next phase (issuing a fresh token) or completes the
// execution, per the v1 sequential phase-resolution rule.
//
// The validation gate (token validity, execution existence, current-step
// match — the single-use enforcement mechanism) runs before any
// transaction opens; the completion/advance runs transactionally so a
// mid-flight failure leaves the execution exactly where it was.
func (e *Executor) Continue(ctx context.Context, def *workflow.Definition, rawToken string, output Output) (*ContinueResult, error) {
	ctx, span := tracer.Start(ctx, observability.SpanExecutorContinue)
	defer span.End()

	payload, err := e.codec.Validate(rawToken)
	if err != nil {
		if apperr.ReasonOf(err) == apperr.ReasonExpired {
			e.store.Emit(ctx, e.logger, store.EventTokenExpired, &payload.ExecutionID, &payload.StepName, nil, nil)
			e.recorder.RecordTokenValidation("expired")
		} else {
			e.recorder.RecordTokenValidation("malformed")
		}
		return nil, err
	}

	exec, err := e.store.GetExecution(ctx, payload.ExecutionID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		e.store.Emit(ctx, e.logger, store.EventError, &payload.ExecutionID, nil, nil, nil)
		return nil, apperr.New(apperr.KindState, "execution %s not found", payload.ExecutionID).
			WithReason(apperr.ReasonExecutionNotFound)
	}

	if exec.CurrentStep == nil || *exec.CurrentStep != payload.StepName {
		e.store.Emit(ctx, e.logger, store.EventError, &payload.ExecutionID, &payload.StepName, nil, typeMetadata("token_step_mismatch"))
		e.recorder.RecordTokenValidation("stale")
		return nil, apperr.New(apperr.KindToken, "token step %s does not match current step", payload.StepName).
			WithReason(apperr.ReasonTokenStepMismatch)
	}
	e.store.Emit(ctx, e.logger, store.EventTokenValidated, &payload.ExecutionID, &payload.StepName, nil, nil)
	e.recorder.RecordTokenValidation("valid")

	now := e.now().UTC()
	outputJSON, err := json.Marshal(output)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "executor: serializing step output")
	}
	outputStr := string(outputJSON)

	var result *ContinueResult
	var nextToken string
	var nextStep workflow.Phase
	var hasNext bool
	var stepAgentName string
	var stepDuration time.Duration

	err = e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		step, err := store.GetRunningStepTx(ctx, tx, payload.ExecutionID, payload.StepName)
		if err != nil {
			return err
		}
		if step == nil || step.Status != store.StepRunning {
			return apperr.New(apperr.KindState, "step %s is not running", payload.StepName).
				WithReason(apperr.ReasonInvalidStepStatus)
		}

		stepAgentName = step.AgentName
		stepDuration = now.Sub(step.StartedAt)
		durationMs := stepDuration.Milliseconds()
		if err := store.CompleteStep(ctx, tx, step.ID, now, durationMs, outputStr); err != nil {
			return err
		}
		if err := store.EmitTx(ctx, tx, store.EventStepCompleted, &payload.ExecutionID, &payload.StepName, nil, nil, now); err != nil {
			return err
		}

		for _, a := range output.Artifacts {
			if _, err := store.InsertArtifact(ctx, tx, &store.Artifact{
				ExecutionID:  payload.ExecutionID,
				StepName:     payload.StepName,
				ArtifactType: a.ArtifactType,
				Name:         a.Name,
				Content:      a.Content,
				ContentType:  a.ContentType,
				SizeBytes:    int64(len(a.Content)),
				Metadata:     a.Metadata,
			}, now); err != nil {
				return err
			}
			if err := store.EmitTx(ctx, tx, store.EventArtifactStored, &payload.ExecutionID, &payload.StepName, nil, nil, now); err != nil {
				return err
			}
		}

		nextStep, hasNext = def.NextPhase(payload.StepName)
		if !hasNext {
			totalSteps, err := countCompletedSteps(ctx, tx, payload.ExecutionID)
			if err != nil {
				return err
			}
			duration := now.Sub(exec.StartedAt).Milliseconds()
			if err := statemachine.TransitionTx(ctx, tx, exec, store.ExecutionCompleted, nil, now, &duration); err != nil {
				return err
			}
			if err := store.EmitTx(ctx, tx, store.EventWorkflowCompleted, &payload.ExecutionID, nil, nil, totalStepsMetadata(totalSteps), now); err != nil {
				return err
			}
			result = &ContinueResult{
				WorkflowState: string(store.ExecutionCompleted),
				Message:       "workflow completed",
			}
			return nil
		}

		nextToken, err = e.codec.Generate(payload.ExecutionID, nextStep.Phase)
		if err != nil {
			return err
		}
		if _, err := store.InsertRunningStep(ctx, tx, payload.ExecutionID, nextStep.Phase, nextStep.Agent, nextToken, now); err != nil {
			return err
		}
		nextName := nextStep.Phase
		if err := statemachine.TransitionTx(ctx, tx, exec, store.ExecutionRunning, &nextName, now, nil); err != nil {
			return err
		}
		if err := store.EmitTx(ctx, tx, store.EventStepStarted, &payload.ExecutionID, &nextStep.Phase, &nextStep.Agent, nil, now); err != nil {
			return err
		}
		if err := store.EmitTx(ctx, tx, store.EventTokenGenerated, &payload.ExecutionID, &nextStep.Phase, nil, nil, now); err != nil {
			return err
		}

		result = &ContinueResult{
			WorkflowState: string(store.ExecutionRunning),
			StepName:      nextStep.Phase,
			AgentName:     nextStep.Agent,
			NewToken:      nextToken,
		}
		return nil
	})
	if err != nil {
		e.store.Emit(ctx, e.logger, store.EventStepFailed, &payload.ExecutionID, &payload.StepName, nil, errMetadata(err))
		e.recorder.RecordStepFailure(def.Name, payload.StepName)
		return nil, err
	}

	e.recorder.RecordStepDuration(def.Name, payload.StepName, stepAgentName, stepDuration)
	if hasNext {
		e.recorder.RecordTokenGenerated(def.Name, nextStep.Phase)
	} else {
		e.recorder.RecordExecutionCompleted(def.Name)
	}

	return result, nil
}

// Abandon administratively transitions executionID to the abandoned
// terminal state, regardless of which step it is currently on. This is
// the caller-cancellation path §5 describes ("callers may cancel by
// invoking an administrative transition to abandoned") but leaves
// unreachable through the two-tool contract in §6.
func (e *Executor) Abandon(ctx context.Context, executionID string) error {
	ctx, span := tracer.Start(ctx, observability.SpanExecutorAbandon)
	defer span.End()

	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}

	now := e.now().UTC()
	var durationMs *int64
	if exec != nil {
		duration := now.Sub(exec.StartedAt).Milliseconds()
		durationMs = &duration
	}
	if err := e.machine.Transition(ctx, executionID, store.ExecutionAbandoned, nil, now, durationMs); err != nil {
		return err
	}
	e.store.Emit(ctx, e.logger, store.EventWorkflowFailed, &executionID, nil, nil, reasonMetadata("abandoned"))
	if exec != nil {
		e.recorder.RecordExecutionAbandoned(exec.WorkflowName)
	}
	return nil
}

// ReissueResult is returned by ReissueToken.
type ReissueResult struct {
	ExecutionID string `json:"execution_id"`
	StepName    string `json:"step_name"`
	AgentName   string `json:"agent_name"`
	NewToken    string `json:"new_token"`
}

// ReissueToken mints a fresh continuation token for the execution's
// current running step, without otherwise changing any state — the
// administrative recovery path for a caller that lost the token issued
// by Start or Continue. Fails with ReasonExecutionNotFound if the
// execution is unknown, or ReasonInvalidStepStatus if its current step
// is not running (e.g. the execution is paused or already terminal).
func (e *Executor) ReissueToken(ctx context.Context, def *workflow.Definition, executionID string) (*ReissueResult, error) {
	ctx, span := tracer.Start(ctx, observability.SpanExecutorReissueToken)
	defer span.End()

	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, apperr.New(apperr.KindState, "execution %s not found", executionID).WithReason(apperr.ReasonExecutionNotFound)
	}
	if exec.State != store.ExecutionRunning || exec.CurrentStep == nil {
		return nil, apperr.New(apperr.KindState, "execution %s has no running step", executionID).WithReason(apperr.ReasonInvalidStepStatus)
	}

	agentName, ok := def.AgentFor(*exec.CurrentStep)
	if !ok {
		return nil, apperr.New(apperr.KindContent, "executor: workflow %s has no phase %s", def.Name, *exec.CurrentStep)
	}

	newToken, err := e.codec.Generate(executionID, *exec.CurrentStep)
	if err != nil {
		return nil, err
	}

	err = e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return store.ReissueToken(ctx, tx, executionID, *exec.CurrentStep, newToken)
	})
	if err != nil {
		return nil, err
	}

	e.store.Emit(ctx, e.logger, store.EventTokenGenerated, &executionID, exec.CurrentStep, nil, nil)
	e.recorder.RecordTokenGenerated(def.Name, *exec.CurrentStep)
	return &ReissueResult{
		ExecutionID: executionID,
		StepName:    *exec.CurrentStep,
		AgentName:   agentName,
		NewToken:    newToken,
	}, nil
}

func reasonMetadata(reason string) *string {
	payload := `{"reason":` + jsonQuote(reason) + `}`
	return &payload
}

func typeMetadata(kind string) *string {
	payload := `{"type":` + jsonQuote(kind) + `}`
	return &payload
}

func countCompletedSteps(ctx context.Context, tx *sqlx.Tx, executionID string) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count, tx.Rebind(`SELECT COUNT(*) FROM steps WHERE execution_id = ? AND status = 'completed'`), executionID)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStore, err, "executor: counting completed steps for %s", executionID)
	}
	return count, nil
}

func totalStepsMetadata(total int) *string {
	payload := `{"total_steps":` + itoa(total) + `}`
	return &payload
}

func errMetadata(err error) *string {
	payload := `{"error":` + jsonQuote(err.Error()) + `}`
	return &payload
}

func itoa(n int) string {
	data, _ := json.Marshal(n)
	return string(data)
}

func jsonQuote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
