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

package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stepflow-dev/stepflow/pkg/tools"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.Tool{
		Name:        "workflow.start",
		Description: "Start a new run of a named workflow and receive the first step's agent and continuation token.",
		InputSchema: inputSchema[tools.StartRequest](),
	}, s.handleStart)

	s.mcp.AddTool(mcp.Tool{
		Name:        "workflow.next_step",
		Description: "Complete the step named by a continuation token and advance the workflow, receiving the next step or a terminal result.",
		InputSchema: inputSchema[tools.NextStepRequest](),
	}, s.handleNextStep)

	s.mcp.AddTool(mcp.Tool{
		Name:        "workflow.abandon",
		Description: "Administratively cancel a running or paused execution, transitioning it to a terminal abandoned state.",
		InputSchema: inputSchema[tools.AbandonRequest](),
	}, s.handleAbandon)

	s.mcp.AddTool(mcp.Tool{
		Name:        "workflow.reissue_token",
		Description: "Mint a fresh continuation token for an execution's current running step, for a caller that lost the original.",
		InputSchema: inputSchema[tools.ReissueTokenRequest](),
	}, s.handleReissueToken)
}

func decodeArgs[T any](req mcp.CallToolRequest) (T, error) {
	var out T
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func (s *Server) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeArgs[tools.StartRequest](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.tools.Start(ctx, args))
}

func (s *Server) handleNextStep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeArgs[tools.NextStepRequest](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.tools.NextStep(ctx, args))
}

func (s *Server) handleAbandon(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeArgs[tools.AbandonRequest](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.tools.Abandon(ctx, args))
}

func (s *Server) handleReissueToken(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeArgs[tools.ReissueTokenRequest](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.tools.ReissueToken(ctx, args))
}
