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

// Package knowledge wraps the Store's knowledge-finding operations (C6)
// with the query-shaping and optional semantic-recall behavior the
// resource/tool handlers depend on. The Store itself is the source of
// truth for full-text search; this package adds nothing to that
// contract, only conveniences layered on top of it.
package knowledge

import (
	"context"
	"time"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
	"github.com/stepflow-dev/stepflow/pkg/store"
)

// Service exposes the knowledge-finding operations used by callers
// outside pkg/store: resource handlers reading findings, tool handlers
// recording them, and the executor's suggested-findings capture path.
type Service struct {
	store    *store.Store
	semantic *SemanticIndex
}

// New constructs a Service. semantic may be nil — semantic recall is
// purely additive over the mandatory FTS index.
func New(s *store.Store, semantic *SemanticIndex) *Service {
	return &Service{store: s, semantic: semantic}
}

// Record inserts a new finding, respecting the Store's CHECK constraints,
// and mirrors it into the semantic index when one is configured.
func (svc *Service) Record(ctx context.Context, f *store.KnowledgeFinding, now time.Time) (int64, error) {
	if f.Title == "" || f.Content == "" {
		return 0, apperr.New(apperr.KindInput, "knowledge: title and content are required").WithReason(apperr.ReasonMalformed)
	}

	id, err := svc.store.InsertFinding(ctx, f, now)
	if err != nil {
		return 0, err
	}

	if svc.semantic != nil {
		if err := svc.semantic.Index(ctx, id, f.Title, f.Content); err != nil {
			// Semantic indexing is additive; FTS already has the row via
			// the Store's trigger, so a failure here is returned together
			// with the id of the finding that was stored.
			return id, apperr.Wrap(apperr.KindInternal, err, "knowledge: semantic index update for finding %d failed", id)
		}
	}
	return id, nil
}

// Update applies patch to finding id.
func (svc *Service) Update(ctx context.Context, id int64, patch store.UpdateFindingPatch, now time.Time) error {
	return svc.store.UpdateFinding(ctx, id, patch, now)
}

// Deprecate marks finding id as deprecated.
func (svc *Service) Deprecate(ctx context.Context, id int64, now time.Time) error {
	return svc.store.DeprecateFinding(ctx, id, now)
}

// Query returns findings matching filters. When filters.Text is set and
// a semantic index is configured, results are the union of the FTS
// lexical match and the semantic nearest-neighbor match, FTS hits first
// and deduplicated by id — FTS stays authoritative, semantic recall only
// adds matches lexical search would have missed.
func (svc *Service) Query(ctx context.Context, filters store.KnowledgeFilters) ([]store.KnowledgeFinding, error) {
	lexical, err := svc.store.Query(ctx, filters)
	if err != nil {
		return nil, err
	}
	if filters.Text == "" || svc.semantic == nil {
		return lexical, nil
	}

	seen := make(map[int64]bool, len(lexical))
	for _, f := range lexical {
		seen[f.ID] = true
	}

	semanticIDs, err := svc.semantic.Search(ctx, filters.Text, 10)
	if err != nil {
		// Semantic recall is additive; a failure there never hides the
		// lexical results already in hand.
		return lexical, nil
	}

	wanted := make(map[int64]bool, len(semanticIDs))
	for _, id := range semanticIDs {
		if !seen[id] {
			wanted[id] = true
		}
	}
	if len(wanted) == 0 {
		return lexical, nil
	}

	all, err := svc.store.Query(ctx, store.KnowledgeFilters{})
	if err != nil {
		return lexical, nil
	}
	for _, f := range all {
		if wanted[f.ID] {
			lexical = append(lexical, f)
		}
	}
	return lexical, nil
}

// ProjectFindings returns findings visible to projectID (its own project
// scope plus system scope).
func (svc *Service) ProjectFindings(ctx context.Context, projectID int64) ([]store.KnowledgeFinding, error) {
	return svc.store.ProjectFindings(ctx, projectID)
}

// GlobalFindings returns active global-scope findings.
func (svc *Service) GlobalFindings(ctx context.Context) ([]store.KnowledgeFinding, error) {
	return svc.store.GlobalFindings(ctx)
}
