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

	"github.com/jmoiron/sqlx"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
)

// InsertArtifact records an immutable artifact produced during a step,
// inside tx. Artifacts are never updated after insert.
func InsertArtifact(ctx context.Context, tx *sqlx.Tx, a *Artifact, now time.Time) (int64, error) {
	a.CreatedAt = now
	res, err := tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO artifacts (execution_id, step_name, artifact_type, name, content, content_type, size_bytes, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ExecutionID, a.StepName, a.ArtifactType, a.Name, a.Content, a.ContentType, a.SizeBytes, a.Metadata, a.CreatedAt,
	)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStore, err, "store: inserting artifact %s for execution %s", a.Name, a.ExecutionID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStore, err, "store: reading artifact id for %s", a.Name)
	}
	return id, nil
}

// ListArtifacts returns artifact summaries for executionID, optionally
// filtered to a single step.
func (s *Store) ListArtifacts(ctx context.Context, executionID string, stepName string) ([]Artifact, error) {
	query := `SELECT id, execution_id, step_name, artifact_type, name, content, content_type, size_bytes, metadata, created_at
	          FROM artifacts WHERE execution_id = ?`
	args := []interface{}{executionID}
	if stepName != "" {
		query += ` AND step_name = ?`
		args = append(args, stepName)
	}
	query += ` ORDER BY created_at ASC`

	var artifacts []Artifact
	if err := s.db.SelectContext(ctx, &artifacts, s.rebind(query), args...); err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "store: listing artifacts for execution %s", executionID)
	}
	return artifacts, nil
}
