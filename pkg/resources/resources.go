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

// Package resources implements the read-only projections (C7) exposed to
// external callers: available workflows, execution status and history,
// artifacts, telemetry, and knowledge findings. Every handler here reads
// through the Store and the content provider; none of them mutate state.
package resources

import (
	"context"

	"github.com/stepflow-dev/stepflow/pkg/content"
	"github.com/stepflow-dev/stepflow/pkg/knowledge"
	"github.com/stepflow-dev/stepflow/pkg/store"
	"github.com/stepflow-dev/stepflow/pkg/token"
	"github.com/stepflow-dev/stepflow/pkg/workflow"
)

const (
	defaultTelemetryLimit = 100
	minTelemetryLimit     = 1
	maxTelemetryLimit     = 1000
)

// Handlers groups the dependencies every projection reads through.
type Handlers struct {
	store     *store.Store
	content   content.Provider
	knowledge *knowledge.Service
	codec     token.Codec
}

// New constructs a Handlers. knowledge may be nil only if the caller never
// invokes the knowledge projections.
func New(s *store.Store, c content.Provider, k *knowledge.Service, codec token.Codec) *Handlers {
	return &Handlers{store: s, content: c, knowledge: k, codec: codec}
}

// WorkflowSummary is the available_workflows entry shape.
type WorkflowSummary struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Complexity  string          `json:"complexity,omitempty"`
	Phases      []WorkflowPhase `json:"phases"`
}

// WorkflowPhase is the phase projection shared by AvailableWorkflows and
// WorkflowDetails.
type WorkflowPhase struct {
	Phase       string `json:"phase"`
	Agent       string `json:"agent"`
	Description string `json:"description,omitempty"`
	DependsOn   string `json:"dependsOn,omitempty"`
}

// AvailableWorkflows returns the summary of every workflow the content
// provider knows about.
func (h *Handlers) AvailableWorkflows(ctx context.Context) ([]WorkflowSummary, error) {
	summaries, err := h.content.ListWorkflows()
	if err != nil {
		return nil, err
	}
	out := make([]WorkflowSummary, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, WorkflowSummary{
			Name:        s.Name,
			Description: s.Description,
			Tags:        s.Tags,
			Complexity:  string(s.Complexity),
			Phases:      toPhases(s.Phases),
		})
	}
	return out, nil
}

// WorkflowDetails is the full-definition projection, including each bound
// agent's prompt content.
type WorkflowDetails struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Complexity  string            `json:"complexity,omitempty"`
	Phases      []WorkflowPhase   `json:"phases"`
	Agents      map[string]string `json:"agents"`
}

// WorkflowDetails returns the full definition for name, including every
// bound agent's prompt content, or nil if the workflow is unknown.
func (h *Handlers) WorkflowDetails(ctx context.Context, name string) (*WorkflowDetails, error) {
	def, err := h.content.GetWorkflow(name)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, nil
	}

	agents := make(map[string]string, len(def.Phases))
	for _, p := range def.Phases {
		if _, ok := agents[p.Agent]; ok {
			continue
		}
		agent, err := h.content.GetAgent(p.Agent)
		if err != nil {
			return nil, err
		}
		if agent != nil {
			agents[p.Agent] = agent.Content
		}
	}

	return &WorkflowDetails{
		Name:        def.Name,
		Description: def.Description,
		Tags:        def.Tags,
		Complexity:  string(def.Complexity),
		Phases:      toPhases(def.Phases),
		Agents:      agents,
	}, nil
}

func toPhases(phases []workflow.Phase) []WorkflowPhase {
	out := make([]WorkflowPhase, 0, len(phases))
	for _, p := range phases {
		out = append(out, WorkflowPhase{Phase: p.Phase, Agent: p.Agent, Description: p.Description, DependsOn: p.DependsOn})
	}
	return out
}
