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

// Package tools implements the write API (C8): the two caller-facing
// tools workflow.start and workflow.next_step, plus the administrative
// workflow.abandon and workflow.reissue_token tools that make the
// "callers may cancel via an administrative transition" escape hatch in
// §5 actually reachable. Every handler here catches its own errors and
// returns a response envelope rather than propagating — per the
// propagation policy, only the transport layer ever sees a raw error.
package tools

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
	"github.com/stepflow-dev/stepflow/pkg/content"
	"github.com/stepflow-dev/stepflow/pkg/executor"
	"github.com/stepflow-dev/stepflow/pkg/knowledge"
	"github.com/stepflow-dev/stepflow/pkg/store"
	"github.com/stepflow-dev/stepflow/pkg/token"
)

// Handlers groups the dependencies the tool surface reads and writes
// through. It sits directly on top of the Store and token Codec (rather
// than only the Executor) because the next_step handler needs to decode
// a token's execution_id before it can load the workflow definition the
// Executor's Continue call requires.
type Handlers struct {
	executor  *executor.Executor
	store     *store.Store
	codec     token.Codec
	content   content.Provider
	knowledge *knowledge.Service
}

// New constructs a Handlers.
func New(ex *executor.Executor, s *store.Store, codec token.Codec, c content.Provider, k *knowledge.Service) *Handlers {
	return &Handlers{executor: ex, store: s, codec: codec, content: c, knowledge: k}
}

// StartRequest is the workflow.start input.
type StartRequest struct {
	WorkflowName string `json:"workflow_name" jsonschema:"required,description=Name of the workflow definition to start"`
	ExecutionID  string `json:"execution_id,omitempty" jsonschema:"description=Caller-supplied execution id; a UUID is generated when omitted"`
}

// StartResponse is the workflow.start output envelope.
type StartResponse struct {
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	Reason        string `json:"reason,omitempty"`
	ExecutionID   string `json:"execution_id,omitempty"`
	StepName      string `json:"step_name,omitempty"`
	AgentName     string `json:"agent_name,omitempty"`
	WorkflowState string `json:"workflow_state,omitempty"`
	NewToken      string `json:"new_token,omitempty"`
	AgentContent  string `json:"agent_content,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Start implements workflow.start: validates the request, loads the
// named workflow, invokes the executor, and augments a successful result
// with the first agent's prompt content for immediate consumption.
func (h *Handlers) Start(ctx context.Context, req StartRequest) StartResponse {
	if req.WorkflowName == "" {
		return startError(apperr.New(apperr.KindInput, "workflow_name is required").WithReason(apperr.ReasonMalformed))
	}

	executionID := req.ExecutionID
	if executionID == "" {
		executionID = uuid.NewString()
	}

	def, err := h.content.GetWorkflow(req.WorkflowName)
	if err != nil {
		return startError(err)
	}
	if def == nil {
		return startError(apperr.New(apperr.KindInput, "unknown workflow %q", req.WorkflowName).WithReason(apperr.ReasonMalformed))
	}

	result, err := h.executor.Start(ctx, def, executionID)
	if err != nil {
		return startError(err)
	}

	resp := StartResponse{
		Success:       true,
		ExecutionID:   result.ExecutionID,
		StepName:      result.StepName,
		AgentName:     result.AgentName,
		WorkflowState: result.WorkflowState,
		NewToken:      result.NewToken,
		Message:       "workflow started",
	}
	if agent, err := h.content.GetAgent(result.AgentName); err == nil && agent != nil {
		resp.AgentContent = agent.Content
	}
	return resp
}

func startError(err error) StartResponse {
	env := apperr.ToEnvelope(err)
	return StartResponse{Success: env.Success, Error: env.Error, Reason: env.Reason}
}

// NextStepRequest is the workflow.next_step input.
type NextStepRequest struct {
	Token  string          `json:"token" jsonschema:"required,description=Continuation token issued for the step being completed"`
	Output executor.Output `json:"output" jsonschema:"required,description=The completed step's output envelope"`
}

// NextStepResponse is the workflow.next_step output envelope.
type NextStepResponse struct {
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	Reason        string `json:"reason,omitempty"`
	WorkflowState string `json:"workflow_state,omitempty"`
	StepName      string `json:"step_name,omitempty"`
	AgentName     string `json:"agent_name,omitempty"`
	NewToken      string `json:"new_token,omitempty"`
	AgentContent  string `json:"agent_content,omitempty"`
	Message       string `json:"message,omitempty"`
}

// NextStep implements workflow.next_step: validates the request, decodes
// the token far enough to load the bound workflow definition, invokes
// the executor, and — on a non-terminal result — augments the response
// with the next agent's prompt content.
func (h *Handlers) NextStep(ctx context.Context, req NextStepRequest) NextStepResponse {
	if req.Token == "" {
		return nextStepError(apperr.New(apperr.KindInput, "token is required").WithReason(apperr.ReasonMalformed))
	}
	if req.Output.Summary == "" {
		return nextStepError(apperr.New(apperr.KindInput, "output.summary is required").WithReason(apperr.ReasonSchema))
	}

	payload, err := h.codec.Validate(req.Token)
	if err != nil {
		return nextStepError(err)
	}
	executionID := payload.ExecutionID

	exec, err := h.store.GetExecution(ctx, executionID)
	if err != nil {
		return nextStepError(err)
	}
	if exec == nil {
		return nextStepError(apperr.New(apperr.KindState, "execution %s not found", executionID).WithReason(apperr.ReasonExecutionNotFound))
	}

	def, err := h.content.GetWorkflow(exec.WorkflowName)
	if err != nil {
		return nextStepError(err)
	}
	if def == nil {
		return nextStepError(apperr.New(apperr.KindContent, "unknown workflow %q", exec.WorkflowName).WithReason(apperr.ReasonMalformed))
	}

	result, err := h.executor.Continue(ctx, def, req.Token, req.Output)
	if err != nil {
		return nextStepError(err)
	}

	if err := h.recordSuggestedFindings(ctx, executionID, req.Output); err != nil {
		// Suggested-finding capture is a convenience on top of a
		// successfully-advanced step; its failure never hides that
		// success from the caller.
		_ = err
	}

	resp := NextStepResponse{
		Success:       true,
		WorkflowState: result.WorkflowState,
		StepName:      result.StepName,
		AgentName:     result.AgentName,
		NewToken:      result.NewToken,
		Message:       result.Message,
	}
	if result.AgentName != "" {
		if agent, err := h.content.GetAgent(result.AgentName); err == nil && agent != nil {
			resp.AgentContent = agent.Content
		}
	}
	return resp
}

func (h *Handlers) recordSuggestedFindings(ctx context.Context, executionID string, output executor.Output) error {
	if h.knowledge == nil || len(output.SuggestedFindings) == 0 {
		return nil
	}
	for _, f := range output.SuggestedFindings {
		finding := &store.KnowledgeFinding{
			Scope:             f.Scope,
			Category:          f.Category,
			Severity:          f.Severity,
			Title:             f.Title,
			Content:           f.Content,
			SourceExecutionID: &executionID,
		}
		if _, err := h.knowledge.Record(ctx, finding, time.Now().UTC()); err != nil {
			return err
		}
	}
	return nil
}

func nextStepError(err error) NextStepResponse {
	env := apperr.ToEnvelope(err)
	return NextStepResponse{Success: env.Success, Error: env.Error, Reason: env.Reason}
}
