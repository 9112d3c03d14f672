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
	"net/url"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const jsonMIME = "application/json"

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource("stepflow://available_workflows", "available_workflows",
		mcp.WithResourceDescription("All workflows known to the content provider."),
		mcp.WithMIMEType(jsonMIME),
	), s.readAvailableWorkflows)

	s.mcp.AddResource(mcp.NewResource("stepflow://knowledge/global", "knowledge_global",
		mcp.WithResourceDescription("Active global-scope knowledge findings."),
		mcp.WithMIMEType(jsonMIME),
	), s.readGlobalKnowledge)

	s.mcp.AddResource(mcp.NewResource("stepflow://telemetry", "telemetry_all",
		mcp.WithResourceDescription("Recent telemetry events across all executions, optionally filtered by ?event_type=&limit=."),
		mcp.WithMIMEType(jsonMIME),
	), s.readTelemetry)

	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate("stepflow://workflow_details/{name}", "workflow_details",
		mcp.WithTemplateDescription("Full definition of one workflow, including agent prompt content."),
		mcp.WithTemplateMIMEType(jsonMIME),
	), s.readWorkflowDetails)

	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate("stepflow://current_step/{execution_id}", "current_step",
		mcp.WithTemplateDescription("The running or paused step of an execution, with its continuation token."),
		mcp.WithTemplateMIMEType(jsonMIME),
	), s.readCurrentStep)

	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate("stepflow://workflow_status/{execution_id}", "workflow_status",
		mcp.WithTemplateDescription("Lifecycle state and step counts for an execution."),
		mcp.WithTemplateMIMEType(jsonMIME),
	), s.readWorkflowStatus)

	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate("stepflow://step_history/{execution_id}", "step_history",
		mcp.WithTemplateDescription("Ordered history of every step attempted by an execution."),
		mcp.WithTemplateMIMEType(jsonMIME),
	), s.readStepHistory)

	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate("stepflow://workflow_artifacts/{execution_id}", "workflow_artifacts",
		mcp.WithTemplateDescription("Artifact summaries for an execution, optionally filtered by ?step=name."),
		mcp.WithTemplateMIMEType(jsonMIME),
	), s.readWorkflowArtifacts)

	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate("stepflow://telemetry/{execution_id}", "telemetry",
		mcp.WithTemplateDescription("Recent telemetry events, optionally filtered by ?event_type=&limit=."),
		mcp.WithTemplateMIMEType(jsonMIME),
	), s.readTelemetry)

	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate("stepflow://knowledge/project/{id}", "knowledge_project",
		mcp.WithTemplateDescription("A project and the knowledge findings visible to it."),
		mcp.WithTemplateMIMEType(jsonMIME),
	), s.readProjectKnowledge)
}

// pathSegment extracts the "/"-separated segment at index of a resource
// URI's path, ignoring any query string; a negative index counts from
// the end, so -1 is the last segment — the {param} position in every
// template this package registers. Out-of-range indexes yield "".
func pathSegment(uri string, index int) string {
	parsed, err := url.Parse(uri)
	path := uri
	if err == nil {
		path = parsed.Path
		if path == "" {
			path = parsed.Opaque
		}
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if index < 0 {
		index += len(parts)
	}
	if index < 0 || index >= len(parts) {
		return ""
	}
	return parts[index]
}

func queryValue(uri, key string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return parsed.Query().Get(key)
}

func textResource(uri string, v any) ([]mcp.ResourceContents, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: jsonMIME, Text: string(raw)},
	}, nil
}

func (s *Server) readAvailableWorkflows(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	result, err := s.resources.AvailableWorkflows(ctx)
	if err != nil {
		return nil, err
	}
	return textResource(req.Params.URI, result)
}

func (s *Server) readGlobalKnowledge(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	result, err := s.resources.GlobalKnowledge(ctx)
	if err != nil {
		return nil, err
	}
	return textResource(req.Params.URI, result)
}

func (s *Server) readWorkflowDetails(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	name := pathSegment(req.Params.URI, -1)
	result, err := s.resources.WorkflowDetails(ctx, name)
	if err != nil {
		return nil, err
	}
	return textResource(req.Params.URI, result)
}

func (s *Server) readCurrentStep(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	executionID := pathSegment(req.Params.URI, -1)
	result, err := s.resources.CurrentStep(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return textResource(req.Params.URI, result)
}

func (s *Server) readWorkflowStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	executionID := pathSegment(req.Params.URI, -1)
	result, err := s.resources.WorkflowStatus(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return textResource(req.Params.URI, result)
}

func (s *Server) readStepHistory(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	executionID := pathSegment(req.Params.URI, -1)
	result, err := s.resources.StepHistory(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return textResource(req.Params.URI, result)
}

func (s *Server) readWorkflowArtifacts(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	executionID := pathSegment(req.Params.URI, -1)
	stepName := queryValue(req.Params.URI, "step")
	result, err := s.resources.WorkflowArtifacts(ctx, executionID, stepName)
	if err != nil {
		return nil, err
	}
	return textResource(req.Params.URI, result)
}

func (s *Server) readTelemetry(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	executionID := pathSegment(req.Params.URI, -1)
	eventType := queryValue(req.Params.URI, "event_type")
	limit := 100
	if raw := queryValue(req.Params.URI, "limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	result, err := s.resources.Telemetry(ctx, executionID, eventType, limit)
	if err != nil {
		return nil, err
	}
	return textResource(req.Params.URI, result)
}

func (s *Server) readProjectKnowledge(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	raw := pathSegment(req.Params.URI, -1)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return textResource(req.Params.URI, map[string]string{"error": "invalid project id"})
	}
	result, err := s.resources.ProjectKnowledge(ctx, id)
	if err != nil {
		return nil, err
	}
	return textResource(req.Params.URI, result)
}
