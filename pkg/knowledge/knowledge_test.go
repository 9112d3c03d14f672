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

package knowledge

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
	"github.com/stepflow-dev/stepflow/pkg/store"
)

func newTestService(t *testing.T, semantic *SemanticIndex) (*Service, *store.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "stepflow.db")
	s, err := store.Open(store.DialectSQLite, dbPath)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background(), nil); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return New(s, semantic), s
}

func TestService_Record_RejectsEmptyTitleOrContent(t *testing.T) {
	svc, _ := newTestService(t, nil)
	now := time.Now().UTC()

	_, err := svc.Record(context.Background(), &store.KnowledgeFinding{
		Scope:    store.ScopeGlobal,
		Category: store.CategoryPattern,
		Severity: store.SeverityInfo,
		Content:  "body with no title",
	}, now)
	if apperr.ReasonOf(err) != apperr.ReasonMalformed {
		t.Fatalf("Record() error = %v, want ReasonMalformed", err)
	}
}

func TestService_Record_InsertsAndIsQueryable(t *testing.T) {
	svc, _ := newTestService(t, nil)
	now := time.Now().UTC()

	id, err := svc.Record(context.Background(), &store.KnowledgeFinding{
		Scope:    store.ScopeGlobal,
		Category: store.CategoryPattern,
		Severity: store.SeverityInfo,
		Title:    "retry budget",
		Content:  "cap retries at three attempts",
	}, now)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	found, err := svc.GlobalFindings(context.Background())
	if err != nil {
		t.Fatalf("GlobalFindings() error = %v", err)
	}
	if len(found) != 1 || found[0].ID != id {
		t.Fatalf("GlobalFindings() = %+v, want exactly the recorded finding", found)
	}
}

func TestService_Query_WithoutSemanticIndexIsLexicalOnly(t *testing.T) {
	svc, _ := newTestService(t, nil)
	now := time.Now().UTC()

	if _, err := svc.Record(context.Background(), &store.KnowledgeFinding{
		Scope:    store.ScopeGlobal,
		Category: store.CategoryPattern,
		Severity: store.SeverityInfo,
		Title:    "deployment rollback",
		Content:  "roll back on failed health check",
	}, now); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	results, err := svc.Query(context.Background(), store.KnowledgeFilters{Text: "rollback"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Query() = %+v, want exactly one lexical match", results)
	}
}

func TestService_Query_WithSemanticIndexAddsNearestNeighborMatches(t *testing.T) {
	semantic, err := NewSemanticIndex()
	if err != nil {
		t.Fatalf("NewSemanticIndex() error = %v", err)
	}
	svc, _ := newTestService(t, semantic)
	now := time.Now().UTC()

	lexicalID, err := svc.Record(context.Background(), &store.KnowledgeFinding{
		Scope:    store.ScopeGlobal,
		Category: store.CategoryPattern,
		Severity: store.SeverityInfo,
		Title:    "circuit breaker threshold",
		Content:  "trip after five consecutive failures",
	}, now)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	paraphraseID, err := svc.Record(context.Background(), &store.KnowledgeFinding{
		Scope:    store.ScopeGlobal,
		Category: store.CategoryPattern,
		Severity: store.SeverityInfo,
		Title:    "breaker trips on failures",
		Content:  "consecutive failures trip the circuit after five",
	}, now)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	results, err := svc.Query(context.Background(), store.KnowledgeFilters{Text: "circuit breaker threshold"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	seen := make(map[int64]bool, len(results))
	for _, f := range results {
		seen[f.ID] = true
	}
	if !seen[lexicalID] {
		t.Fatalf("Query() = %+v, want the exact lexical match %d included", results, lexicalID)
	}
	if !seen[paraphraseID] {
		t.Fatalf("Query() = %+v, want the near-duplicate finding %d recovered via semantic recall", results, paraphraseID)
	}
}

func TestService_Deprecate_ExcludesFindingFromFutureQueries(t *testing.T) {
	svc, _ := newTestService(t, nil)
	now := time.Now().UTC()

	id, err := svc.Record(context.Background(), &store.KnowledgeFinding{
		Scope:    store.ScopeGlobal,
		Category: store.CategoryPattern,
		Severity: store.SeverityInfo,
		Title:    "stale cache key",
		Content:  "invalidate on write, not read",
	}, now)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if err := svc.Deprecate(context.Background(), id, now); err != nil {
		t.Fatalf("Deprecate() error = %v", err)
	}

	found, err := svc.GlobalFindings(context.Background())
	if err != nil {
		t.Fatalf("GlobalFindings() error = %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("GlobalFindings() = %+v, want deprecated finding excluded", found)
	}
}
