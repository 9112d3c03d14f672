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

package resources

import (
	"context"
	"fmt"
	"time"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
	"github.com/stepflow-dev/stepflow/pkg/store"
)

// CurrentStep is the current_step/{execution_id} projection: everything a
// caller needs to resume an execution without a separate round trip.
type CurrentStep struct {
	ExecutionID       string  `json:"execution_id"`
	WorkflowName      string  `json:"workflow_name"`
	WorkflowState     string  `json:"workflow_state"`
	CurrentStep       string  `json:"current_step"`
	StepStatus        string  `json:"step_status"`
	AgentName         string  `json:"agent_name"`
	Progress          string  `json:"progress"`
	ContinuationToken string  `json:"continuation_token,omitempty"`
	AgentContent      string  `json:"agent_content,omitempty"`
	Instructions      string  `json:"instructions,omitempty"`
}

// CurrentStep returns the current-step projection for executionID, or nil
// if the execution is unknown.
func (h *Handlers) CurrentStep(ctx context.Context, executionID string) (*CurrentStep, error) {
	exec, err := h.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, nil
	}

	def, err := h.content.GetWorkflow(exec.WorkflowName)
	if err != nil {
		return nil, err
	}

	result := &CurrentStep{
		ExecutionID:   exec.ExecutionID,
		WorkflowName:  exec.WorkflowName,
		WorkflowState: string(exec.State),
	}
	if exec.CurrentStep != nil {
		result.CurrentStep = *exec.CurrentStep
	}

	if def != nil && exec.CurrentStep != nil {
		idx := def.IndexOf(*exec.CurrentStep)
		if idx >= 0 {
			result.Progress = fmt.Sprintf("%d/%d", idx+1, len(def.Phases))
			result.AgentName = def.Phases[idx].Agent
			result.Instructions = def.Phases[idx].Description
			if agent, err := h.content.GetAgent(def.Phases[idx].Agent); err == nil && agent != nil {
				result.AgentContent = agent.Content
			}
		}
	}

	if exec.CurrentStep != nil {
		step, err := h.store.GetStep(ctx, exec.ExecutionID, *exec.CurrentStep)
		if err != nil {
			return nil, err
		}
		if step != nil {
			result.StepStatus = string(step.Status)
			if step.Token != nil {
				result.ContinuationToken = *step.Token
			}
		}
	}

	return result, nil
}

// StepCounts is the steps summary embedded in WorkflowStatus.
type StepCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Running   int `json:"running"`
	Pending   int `json:"pending"`
}

// WorkflowStatus is the workflow_status/{execution_id} projection.
type WorkflowStatus struct {
	State       string     `json:"state"`
	CurrentStep string     `json:"current_step,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  *int64     `json:"duration_ms,omitempty"`
	Steps       StepCounts `json:"steps"`
}

// WorkflowStatus returns the status summary for executionID, or nil if
// unknown.
func (h *Handlers) WorkflowStatus(ctx context.Context, executionID string) (*WorkflowStatus, error) {
	exec, err := h.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, nil
	}

	counts, err := h.store.CountStepsByStatus(ctx, executionID)
	if err != nil {
		return nil, err
	}

	status := &WorkflowStatus{
		State:       string(exec.State),
		StartedAt:   exec.StartedAt,
		UpdatedAt:   exec.UpdatedAt,
		CompletedAt: exec.CompletedAt,
		DurationMs:  exec.DurationMs,
		Steps: StepCounts{
			Completed: counts[store.StepCompleted],
			Failed:    counts[store.StepFailed],
			Running:   counts[store.StepRunning],
			Pending:   counts[store.StepPending],
		},
	}
	status.Steps.Total = status.Steps.Completed + status.Steps.Failed + status.Steps.Running + status.Steps.Pending
	if exec.CurrentStep != nil {
		status.CurrentStep = *exec.CurrentStep
	}
	return status, nil
}

// StepHistoryEntry is one element of the step_history/{execution_id}
// projection.
type StepHistoryEntry struct {
	StepName    string     `json:"step_name"`
	AgentName   string     `json:"agent_name"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  *int64     `json:"duration_ms,omitempty"`
	Output      string     `json:"output,omitempty"`
}

// StepHistory returns the ordered step history for executionID. Returns
// an ExecutionNotFound error if the execution does not exist, so callers
// can distinguish "no steps yet" from "no such execution".
func (h *Handlers) StepHistory(ctx context.Context, executionID string) ([]StepHistoryEntry, error) {
	exec, err := h.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, apperr.New(apperr.KindState, "no such execution %s", executionID).WithReason(apperr.ReasonExecutionNotFound)
	}

	steps, err := h.store.ListStepHistory(ctx, executionID)
	if err != nil {
		return nil, err
	}

	out := make([]StepHistoryEntry, 0, len(steps))
	for _, s := range steps {
		entry := StepHistoryEntry{
			StepName:    s.StepName,
			AgentName:   s.AgentName,
			Status:      string(s.Status),
			StartedAt:   s.StartedAt,
			CompletedAt: s.CompletedAt,
			DurationMs:  s.DurationMs,
		}
		if s.Output != nil {
			entry.Output = *s.Output
		}
		out = append(out, entry)
	}
	return out, nil
}

// ArtifactSummary is one element of the workflow_artifacts projection:
// metadata and size, not the full content.
type ArtifactSummary struct {
	ID           int64     `json:"id"`
	StepName     string    `json:"step_name"`
	ArtifactType string    `json:"artifact_type"`
	Name         string    `json:"name"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
}

// WorkflowArtifacts returns artifact summaries for executionID, optionally
// filtered to a single step.
func (h *Handlers) WorkflowArtifacts(ctx context.Context, executionID, stepName string) ([]ArtifactSummary, error) {
	exec, err := h.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, apperr.New(apperr.KindState, "no such execution %s", executionID).WithReason(apperr.ReasonExecutionNotFound)
	}

	artifacts, err := h.store.ListArtifacts(ctx, executionID, stepName)
	if err != nil {
		return nil, err
	}

	out := make([]ArtifactSummary, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, ArtifactSummary{
			ID:           a.ID,
			StepName:     a.StepName,
			ArtifactType: string(a.ArtifactType),
			Name:         a.Name,
			ContentType:  string(a.ContentType),
			SizeBytes:    a.SizeBytes,
			CreatedAt:    a.CreatedAt,
		})
	}
	return out, nil
}

// TelemetryEntry is one element of the telemetry projection.
type TelemetryEntry struct {
	EventType   string    `json:"event_type"`
	ExecutionID string    `json:"execution_id,omitempty"`
	StepName    string    `json:"step_name,omitempty"`
	AgentName   string    `json:"agent_name,omitempty"`
	Metadata    string    `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Telemetry returns the most recent telemetry events, optionally scoped
// to executionID and/or eventType. limit is clamped to [1, 1000]; a
// non-positive limit uses the default of 100.
func (h *Handlers) Telemetry(ctx context.Context, executionID, eventType string, limit int) ([]TelemetryEntry, error) {
	switch {
	case limit <= 0:
		limit = defaultTelemetryLimit
	case limit < minTelemetryLimit:
		limit = minTelemetryLimit
	case limit > maxTelemetryLimit:
		limit = maxTelemetryLimit
	}

	events, err := h.store.ListTelemetry(ctx, executionID, eventType, limit)
	if err != nil {
		return nil, err
	}

	out := make([]TelemetryEntry, 0, len(events))
	for _, e := range events {
		entry := TelemetryEntry{EventType: e.EventType, CreatedAt: e.CreatedAt}
		if e.ExecutionID != nil {
			entry.ExecutionID = *e.ExecutionID
		}
		if e.StepName != nil {
			entry.StepName = *e.StepName
		}
		if e.AgentName != nil {
			entry.AgentName = *e.AgentName
		}
		if e.Metadata != nil {
			entry.Metadata = *e.Metadata
		}
		out = append(out, entry)
	}
	return out, nil
}
