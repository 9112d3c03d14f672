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
	"time"

	"github.com/stepflow-dev/stepflow/pkg/store"
)

// FindingView is the JSON projection of a knowledge finding.
type FindingView struct {
	ID        int64     `json:"id"`
	Scope     string    `json:"scope"`
	Category  string    `json:"category"`
	Severity  string    `json:"severity"`
	Status    string    `json:"status"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toFindingView(f store.KnowledgeFinding) FindingView {
	return FindingView{
		ID:        f.ID,
		Scope:     string(f.Scope),
		Category:  string(f.Category),
		Severity:  string(f.Severity),
		Status:    string(f.Status),
		Title:     f.Title,
		Content:   f.Content,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// ProjectKnowledge is the knowledge/project/{id} projection: the project
// itself plus every finding visible to it (its own project scope plus
// system scope).
type ProjectKnowledge struct {
	Project  store.Project `json:"project"`
	Findings []FindingView `json:"findings"`
}

// ProjectKnowledge returns the project and its applicable findings, or
// nil if no project with the given id is registered.
func (h *Handlers) ProjectKnowledge(ctx context.Context, projectID int64) (*ProjectKnowledge, error) {
	proj, err := h.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if proj == nil {
		return nil, nil
	}

	findings, err := h.knowledge.ProjectFindings(ctx, projectID)
	if err != nil {
		return nil, err
	}

	views := make([]FindingView, 0, len(findings))
	for _, f := range findings {
		views = append(views, toFindingView(f))
	}
	return &ProjectKnowledge{Project: *proj, Findings: views}, nil
}

// GlobalKnowledge returns every active global-scope finding.
func (h *Handlers) GlobalKnowledge(ctx context.Context) ([]FindingView, error) {
	findings, err := h.knowledge.GlobalFindings(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]FindingView, 0, len(findings))
	for _, f := range findings {
		views = append(views, toFindingView(f))
	}
	return views, nil
}
