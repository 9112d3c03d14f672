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

package store

import (
	"context"
	"time"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
)

// KnowledgeFilters selects which findings Query returns.
type KnowledgeFilters struct {
	Scope     FindingScope
	ProjectID *int64
	Category  FindingCategory
	Severity  FindingSeverity
	Status    FindingStatus
	Text      string
}

// InsertFinding inserts a new knowledge finding; the mirroring FTS row is
// maintained by the trg_findings_ai trigger, not by this function.
func (s *Store) InsertFinding(ctx context.Context, f *KnowledgeFinding, now time.Time) (int64, error) {
	if f.Status == "" {
		f.Status = FindingActive
	}
	f.CreatedAt = now
	f.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO knowledge_findings
		   (scope, project_id, category, severity, status, title, content, tags,
		    source_execution_id, source_agent, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		f.Scope, f.ProjectID, f.Category, f.Severity, f.Status, f.Title, f.Content, f.Tags,
		f.SourceExecutionID, f.SourceAgent, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStore, err, "store: inserting knowledge finding %q", f.Title)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStore, err, "store: reading knowledge finding id")
	}
	return id, nil
}

// UpdateFindingPatch is the set of fields Update may modify; a nil field
// leaves the column unchanged. At least one field must be non-nil.
type UpdateFindingPatch struct {
	Title    *string
	Content  *string
	Severity *FindingSeverity
	Category *FindingCategory
	Tags     *string
}

// UpdateFinding applies patch to finding id; updated_at auto-advances.
// The mirroring FTS row is refreshed by trg_findings_au.
func (s *Store) UpdateFinding(ctx context.Context, id int64, patch UpdateFindingPatch, now time.Time) error {
	if patch.Title == nil && patch.Content == nil && patch.Severity == nil && patch.Category == nil && patch.Tags == nil {
		return apperr.New(apperr.KindInput, "knowledge: update patch must modify at least one field")
	}

	set := `updated_at = ?`
	args := []interface{}{now}
	if patch.Title != nil {
		set += `, title = ?`
		args = append(args, *patch.Title)
	}
	if patch.Content != nil {
		set += `, content = ?`
		args = append(args, *patch.Content)
	}
	if patch.Severity != nil {
		set += `, severity = ?`
		args = append(args, *patch.Severity)
	}
	if patch.Category != nil {
		set += `, category = ?`
		args = append(args, *patch.Category)
	}
	if patch.Tags != nil {
		set += `, tags = ?`
		args = append(args, *patch.Tags)
	}
	args = append(args, id)

	_, err := s.db.ExecContext(ctx, s.rebind(`UPDATE knowledge_findings SET `+set+` WHERE id = ?`), args...)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "store: updating knowledge finding %d", id)
	}
	return nil
}

// DeprecateFinding sets status='deprecated' on finding id.
func (s *Store) DeprecateFinding(ctx context.Context, id int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE knowledge_findings SET status = ?, updated_at = ? WHERE id = ?`),
		FindingDeprecated, now, id,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "store: deprecating knowledge finding %d", id)
	}
	return nil
}

// Query returns findings matching filters, ordered by severity DESC,
// created_at DESC. When filters.Text is set, the query joins the FTS
// virtual table instead of scanning knowledge_findings directly.
func (s *Store) Query(ctx context.Context, filters KnowledgeFilters) ([]KnowledgeFinding, error) {
	var query string
	var args []interface{}

	if filters.Text != "" {
		query = `SELECT kf.id, kf.scope, kf.project_id, kf.category, kf.severity, kf.status, kf.title, kf.content,
		                kf.tags, kf.source_execution_id, kf.source_agent, kf.created_at, kf.updated_at
		          FROM knowledge_findings kf
		          JOIN knowledge_findings_fts fts ON fts.rowid = kf.id
		          WHERE knowledge_findings_fts MATCH ?`
		args = append(args, filters.Text)
	} else {
		query = `SELECT id, scope, project_id, category, severity, status, title, content,
		                tags, source_execution_id, source_agent, created_at, updated_at
		          FROM knowledge_findings kf WHERE 1=1`
	}

	if filters.Scope != "" {
		query += ` AND kf.scope = ?`
		args = append(args, filters.Scope)
	}
	if filters.ProjectID != nil {
		query += ` AND kf.project_id = ?`
		args = append(args, *filters.ProjectID)
	}
	if filters.Category != "" {
		query += ` AND kf.category = ?`
		args = append(args, filters.Category)
	}
	if filters.Severity != "" {
		query += ` AND kf.severity = ?`
		args = append(args, filters.Severity)
	}
	if filters.Status != "" {
		query += ` AND kf.status = ?`
		args = append(args, filters.Status)
	}
	query += ` ORDER BY ` + severityOrderCase + `, kf.created_at DESC`

	var findings []KnowledgeFinding
	if err := s.db.SelectContext(ctx, &findings, s.rebind(query), args...); err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "store: querying knowledge findings")
	}
	return findings, nil
}

// ProjectFindings returns active findings visible to projectID: its own
// project-scoped findings plus every system-scoped finding.
func (s *Store) ProjectFindings(ctx context.Context, projectID int64) ([]KnowledgeFinding, error) {
	var findings []KnowledgeFinding
	err := s.db.SelectContext(ctx, &findings, s.rebind(
		`SELECT id, scope, project_id, category, severity, status, title, content,
		        tags, source_execution_id, source_agent, created_at, updated_at
		 FROM knowledge_findings
		 WHERE status = 'active' AND ((scope = 'project' AND project_id = ?) OR scope = 'system')
		 ORDER BY `+severityOrderCase+`, created_at DESC`),
		projectID,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "store: loading findings for project %d", projectID)
	}
	return findings, nil
}

// GlobalFindings returns active global-scope findings.
func (s *Store) GlobalFindings(ctx context.Context) ([]KnowledgeFinding, error) {
	var findings []KnowledgeFinding
	err := s.db.SelectContext(ctx, &findings, s.rebind(
		`SELECT id, scope, project_id, category, severity, status, title, content,
		        tags, source_execution_id, source_agent, created_at, updated_at
		 FROM knowledge_findings
		 WHERE status = 'active' AND scope = 'global'
		 ORDER BY `+severityOrderCase+`, created_at DESC`),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "store: loading global findings")
	}
	return findings, nil
}
