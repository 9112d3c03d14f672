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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stepflow-dev/stepflow/pkg/content"
	"github.com/stepflow-dev/stepflow/pkg/executor"
	"github.com/stepflow-dev/stepflow/pkg/knowledge"
	"github.com/stepflow-dev/stepflow/pkg/resources"
	"github.com/stepflow-dev/stepflow/pkg/statemachine"
	"github.com/stepflow-dev/stepflow/pkg/store"
	"github.com/stepflow-dev/stepflow/pkg/token"
	"github.com/stepflow-dev/stepflow/pkg/tools"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll(%s) error = %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "workflows", "demo.yaml"), `
name: demo
phases:
  - phase: plan
    agent: planner
  - phase: build
    agent: builder
`)
	writeFile(t, filepath.Join(root, "agents", "planner.md"), "Plan the work.\n")
	writeFile(t, filepath.Join(root, "agents", "builder.md"), "Build the work.\n")

	provider, err := content.NewFilesystemProvider(root, nil)
	if err != nil {
		t.Fatalf("NewFilesystemProvider() error = %v", err)
	}

	s, err := store.Open(store.DialectSQLite, filepath.Join(t.TempDir(), "stepflow.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background(), nil); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	machine := statemachine.New(s, nil)
	codec := token.New()
	ex := executor.New(s, machine, codec, nil)
	svc := knowledge.New(s, nil)

	toolHandlers := tools.New(ex, s, codec, provider, svc)
	resourceHandlers := resources.New(s, provider, svc, codec)

	return New("stepflow-test", "0.0.0", toolHandlers, resourceHandlers, nil)
}

func callTool(ctx context.Context, s *Server, name string, args map[string]any) (map[string]any, error) {
	var result *mcp.CallToolResult
	var err error

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	switch name {
	case "workflow.start":
		result, err = s.handleStart(ctx, req)
	case "workflow.next_step":
		result, err = s.handleNextStep(ctx, req)
	case "workflow.abandon":
		result, err = s.handleAbandon(ctx, req)
	case "workflow.reissue_token":
		result, err = s.handleReissueToken(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	text := result.Content[0].(mcp.TextContent).Text
	var out map[string]any
	if jsonErr := json.Unmarshal([]byte(text), &out); jsonErr != nil {
		return nil, jsonErr
	}
	return out, nil
}

func TestServer_RegistersAllToolsAndResources(t *testing.T) {
	s := newTestServer(t)
	if s.mcp == nil {
		t.Fatal("New() produced a nil underlying MCP server")
	}
}

func TestServer_HandleStart_ReturnsAgentContent(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	out, err := callTool(ctx, s, "workflow.start", map[string]any{
		"workflow_name": "demo",
		"execution_id":  "exec-1",
	})
	if err != nil {
		t.Fatalf("workflow.start error = %v", err)
	}
	if out["success"] != true {
		t.Fatalf("workflow.start = %+v, want success", out)
	}
	if out["step_name"] != "plan" || out["agent_content"] == "" {
		t.Fatalf("workflow.start = %+v, want step=plan with agent_content", out)
	}
}

func TestServer_HandleNextStep_AdvancesWorkflow(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	start, err := callTool(ctx, s, "workflow.start", map[string]any{
		"workflow_name": "demo",
		"execution_id":  "exec-2",
	})
	if err != nil {
		t.Fatalf("workflow.start error = %v", err)
	}

	next, err := callTool(ctx, s, "workflow.next_step", map[string]any{
		"token": start["new_token"],
		"output": map[string]any{
			"summary": "planned",
		},
	})
	if err != nil {
		t.Fatalf("workflow.next_step error = %v", err)
	}
	if next["success"] != true || next["step_name"] != "build" {
		t.Fatalf("workflow.next_step = %+v, want step=build", next)
	}
}

func TestServer_HandleAbandon_TransitionsExecution(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	if _, err := callTool(ctx, s, "workflow.start", map[string]any{
		"workflow_name": "demo",
		"execution_id":  "exec-3",
	}); err != nil {
		t.Fatalf("workflow.start error = %v", err)
	}

	out, err := callTool(ctx, s, "workflow.abandon", map[string]any{"execution_id": "exec-3"})
	if err != nil {
		t.Fatalf("workflow.abandon error = %v", err)
	}
	if out["success"] != true {
		t.Fatalf("workflow.abandon = %+v, want success", out)
	}
}

func readResource(ctx context.Context, s *Server, uri string) ([]mcp.ResourceContents, error) {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri

	switch {
	case uri == "stepflow://available_workflows":
		return s.readAvailableWorkflows(ctx, req)
	case uri == "stepflow://knowledge/global":
		return s.readGlobalKnowledge(ctx, req)
	case uri == "stepflow://telemetry" || strings.HasPrefix(uri, "stepflow://telemetry/"):
		return s.readTelemetry(ctx, req)
	case strings.HasPrefix(uri, "stepflow://workflow_details/"):
		return s.readWorkflowDetails(ctx, req)
	case strings.HasPrefix(uri, "stepflow://current_step/"):
		return s.readCurrentStep(ctx, req)
	case strings.HasPrefix(uri, "stepflow://workflow_status/"):
		return s.readWorkflowStatus(ctx, req)
	case strings.HasPrefix(uri, "stepflow://step_history/"):
		return s.readStepHistory(ctx, req)
	case strings.HasPrefix(uri, "stepflow://workflow_artifacts/"):
		return s.readWorkflowArtifacts(ctx, req)
	case strings.HasPrefix(uri, "stepflow://knowledge/project/"):
		return s.readProjectKnowledge(ctx, req)
	}
	return nil, nil
}

func TestServer_ReadAvailableWorkflows_ListsDemo(t *testing.T) {
	s := newTestServer(t)
	contents, err := readResource(context.Background(), s, "stepflow://available_workflows")
	if err != nil {
		t.Fatalf("readAvailableWorkflows error = %v", err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, `"name":"demo"`) {
		t.Fatalf("available_workflows body = %s, want it to list demo", text)
	}
}

func TestServer_ReadCurrentStep_ReflectsRunningExecution(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	if _, err := callTool(ctx, s, "workflow.start", map[string]any{
		"workflow_name": "demo",
		"execution_id":  "exec-4",
	}); err != nil {
		t.Fatalf("workflow.start error = %v", err)
	}

	contents, err := readResource(ctx, s, "stepflow://current_step/exec-4")
	if err != nil {
		t.Fatalf("readCurrentStep error = %v", err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, `"current_step":"plan"`) {
		t.Fatalf("current_step body = %s, want current_step=plan", text)
	}
}

func TestServer_ReadWorkflowArtifacts_FiltersByStepQueryParam(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	if _, err := callTool(ctx, s, "workflow.start", map[string]any{
		"workflow_name": "demo",
		"execution_id":  "exec-5",
	}); err != nil {
		t.Fatalf("workflow.start error = %v", err)
	}

	contents, err := readResource(ctx, s, "stepflow://workflow_artifacts/exec-5?step=plan")
	if err != nil {
		t.Fatalf("readWorkflowArtifacts error = %v", err)
	}
	if contents == nil {
		t.Fatal("readWorkflowArtifacts returned no contents")
	}
}

func TestServer_ReadTelemetry_DefaultsToAllExecutions(t *testing.T) {
	s := newTestServer(t)
	contents, err := readResource(context.Background(), s, "stepflow://telemetry")
	if err != nil {
		t.Fatalf("readTelemetry error = %v", err)
	}
	if contents == nil {
		t.Fatal("readTelemetry returned no contents")
	}
}
