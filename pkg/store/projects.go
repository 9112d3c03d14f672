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
	"database/sql"
	"errors"
	"time"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
)

// CreateProject inserts a new project row. Fails with
// ReasonDuplicateProjectPath on a path collision.
func (s *Store) CreateProject(ctx context.Context, name, path string, isGitRepo bool, metadata *string, now time.Time) (*Project, error) {
	proj := &Project{
		Name:         name,
		Path:         path,
		IsGitRepo:    isGitRepo,
		Metadata:     metadata,
		DiscoveredAt: now,
		LastUsedAt:   &now,
	}

	res, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO projects (name, path, is_git_repo, metadata, discovered_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		proj.Name, proj.Path, proj.IsGitRepo, proj.Metadata, proj.DiscoveredAt, proj.LastUsedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindState, err, "project path %s already registered", path).
				WithReason(apperr.ReasonDuplicateProjectPath)
		}
		return nil, apperr.Wrap(apperr.KindStore, err, "store: inserting project %s", name)
	}
	if id, err := res.LastInsertId(); err == nil {
		proj.ID = id
	}
	return proj, nil
}

// GetProject loads a project by id, or (nil, nil) if absent.
func (s *Store) GetProject(ctx context.Context, id int64) (*Project, error) {
	var proj Project
	err := s.db.GetContext(ctx, &proj, s.rebind(
		`SELECT id, name, path, is_git_repo, metadata, discovered_at, last_used_at FROM projects WHERE id = ?`),
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "store: loading project %d", id)
	}
	return &proj, nil
}

// GetProjectByPath loads a project by its filesystem path, or (nil, nil)
// if no project is registered at that path.
func (s *Store) GetProjectByPath(ctx context.Context, path string) (*Project, error) {
	var proj Project
	err := s.db.GetContext(ctx, &proj, s.rebind(
		`SELECT id, name, path, is_git_repo, metadata, discovered_at, last_used_at FROM projects WHERE path = ?`),
		path,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "store: loading project at %s", path)
	}
	return &proj, nil
}

// ListProjects returns every registered project, most recently used first.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	err := s.db.SelectContext(ctx, &projects, s.rebind(
		`SELECT id, name, path, is_git_repo, metadata, discovered_at, last_used_at FROM projects
		 ORDER BY CASE WHEN last_used_at IS NULL THEN 1 ELSE 0 END, last_used_at DESC`),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "store: listing projects")
	}
	return projects, nil
}

// TouchProject advances last_used_at to now — called whenever a new
// execution references this project, so ListProjects surfaces active
// projects first.
func (s *Store) TouchProject(ctx context.Context, id int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE projects SET last_used_at = ? WHERE id = ?`),
		now, id,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "store: touching project %d", id)
	}
	return nil
}

// DeleteProject removes a project. Executions referencing it keep their
// project_id as a historical pointer — the executions table has no
// foreign key onto projects, so deleting a project never cascades.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM projects WHERE id = ?`), id)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "store: deleting project %d", id)
	}
	return nil
}
