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

package tools

import (
	"context"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
)

// AbandonRequest is the workflow.abandon input.
type AbandonRequest struct {
	ExecutionID string `json:"execution_id" jsonschema:"required,description=Execution to abandon"`
}

// AbandonResponse is the workflow.abandon output envelope.
type AbandonResponse struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	Reason      string `json:"reason,omitempty"`
	ExecutionID string `json:"execution_id,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Abandon implements the administrative workflow.abandon tool: an
// out-of-band cancellation path for an execution that no caller will
// ever complete with a valid token again.
func (h *Handlers) Abandon(ctx context.Context, req AbandonRequest) AbandonResponse {
	if req.ExecutionID == "" {
		env := apperr.ToEnvelope(apperr.New(apperr.KindInput, "execution_id is required").WithReason(apperr.ReasonMalformed))
		return AbandonResponse{Success: env.Success, Error: env.Error, Reason: env.Reason}
	}

	if err := h.executor.Abandon(ctx, req.ExecutionID); err != nil {
		env := apperr.ToEnvelope(err)
		return AbandonResponse{Success: env.Success, Error: env.Error, Reason: env.Reason}
	}

	return AbandonResponse{Success: true, ExecutionID: req.ExecutionID, Message: "execution abandoned"}
}

// ReissueTokenRequest is the workflow.reissue_token input.
type ReissueTokenRequest struct {
	ExecutionID string `json:"execution_id" jsonschema:"required,description=Execution whose current step needs a fresh continuation token"`
}

// ReissueTokenResponse is the workflow.reissue_token output envelope.
type ReissueTokenResponse struct {
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	Reason       string `json:"reason,omitempty"`
	ExecutionID  string `json:"execution_id,omitempty"`
	StepName     string `json:"step_name,omitempty"`
	AgentName    string `json:"agent_name,omitempty"`
	NewToken     string `json:"new_token,omitempty"`
	AgentContent string `json:"agent_content,omitempty"`
}

// ReissueToken implements the administrative workflow.reissue_token
// tool: mints a fresh continuation token for an execution's current
// running step, for a caller that lost the token Start or NextStep
// issued.
func (h *Handlers) ReissueToken(ctx context.Context, req ReissueTokenRequest) ReissueTokenResponse {
	if req.ExecutionID == "" {
		env := apperr.ToEnvelope(apperr.New(apperr.KindInput, "execution_id is required").WithReason(apperr.ReasonMalformed))
		return ReissueTokenResponse{Success: env.Success, Error: env.Error, Reason: env.Reason}
	}

	exec, err := h.store.GetExecution(ctx, req.ExecutionID)
	if err != nil {
		env := apperr.ToEnvelope(err)
		return ReissueTokenResponse{Success: env.Success, Error: env.Error, Reason: env.Reason}
	}
	if exec == nil {
		env := apperr.ToEnvelope(apperr.New(apperr.KindState, "execution %s not found", req.ExecutionID).WithReason(apperr.ReasonExecutionNotFound))
		return ReissueTokenResponse{Success: env.Success, Error: env.Error, Reason: env.Reason}
	}

	def, err := h.content.GetWorkflow(exec.WorkflowName)
	if err != nil {
		env := apperr.ToEnvelope(err)
		return ReissueTokenResponse{Success: env.Success, Error: env.Error, Reason: env.Reason}
	}
	if def == nil {
		env := apperr.ToEnvelope(apperr.New(apperr.KindContent, "unknown workflow %q", exec.WorkflowName).WithReason(apperr.ReasonMalformed))
		return ReissueTokenResponse{Success: env.Success, Error: env.Error, Reason: env.Reason}
	}

	result, err := h.executor.ReissueToken(ctx, def, req.ExecutionID)
	if err != nil {
		env := apperr.ToEnvelope(err)
		return ReissueTokenResponse{Success: env.Success, Error: env.Error, Reason: env.Reason}
	}

	resp := ReissueTokenResponse{
		Success:     true,
		ExecutionID: result.ExecutionID,
		StepName:    result.StepName,
		AgentName:   result.AgentName,
		NewToken:    result.NewToken,
	}
	if agent, err := h.content.GetAgent(result.AgentName); err == nil && agent != nil {
		resp.AgentContent = agent.Content
	}
	return resp
}
