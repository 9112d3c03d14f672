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
	"path/filepath"
	"testing"
)

func TestMigrate_GreenfieldCreatesSchema(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"executions", "steps", "artifacts", "telemetry_events", "projects", "knowledge_findings"} {
		exists, err := s.tableExists(context.Background(), table)
		if err != nil {
			t.Fatalf("tableExists(%s) error = %v", table, err)
		}
		if !exists {
			t.Fatalf("expected table %s to exist after Migrate", table)
		}
	}
}

func TestMigrate_BaselineCompatIsNoOpWithoutLegacyTables(t *testing.T) {
	s := newTestStore(t)

	for _, table := range legacyTableNames {
		exists, err := s.tableExists(context.Background(), table)
		if err != nil {
			t.Fatalf("tableExists(%s) error = %v", table, err)
		}
		if exists {
			t.Fatalf("did not expect legacy table %s on a greenfield install", table)
		}
	}
}

func TestMigrate_LegacySchemaSynthesizesBaselineRow(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")
	s, err := Open(DialectSQLite, dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if _, err := s.db.Exec(`CREATE TABLE workflow_executions (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("creating legacy table error = %v", err)
	}
	if _, err := s.db.Exec(`CREATE TABLE workflow_steps (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("creating legacy table error = %v", err)
	}

	if err := s.Migrate(context.Background(), nil); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	var versionID int
	if err := s.db.Get(&versionID, `SELECT MAX(version_id) FROM schema_migrations WHERE version_id = 1 AND is_applied = 1`); err != nil {
		t.Fatalf("expected a synthesized baseline row at version 1, query error = %v", err)
	}
	if versionID != 1 {
		t.Fatalf("versionID = %d, want 1", versionID)
	}
}
