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
	"embed"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// legacyTableNames are table names from a pre-v1 schema generation. If
// present on first connect, Migrate synthesizes a baseline
// schema_migrations row at version 1 so the new sequence starts from
// version 2 instead of re-running migration 1 against tables that
// already exist in a different shape. Greenfield installs (the common
// case) never see these tables and this is a no-op.
var legacyTableNames = []string{"workflow_executions", "workflow_steps"}

// Migrate applies every pending migration, each in its own transaction,
// recording successful application in the schema_migrations table. It
// refuses to run migrations out of order and requires pending versions
// to be contiguous — both enforced by goose itself.
func (s *Store) Migrate(ctx context.Context, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	goose.SetBaseFS(migrationFS)
	defer goose.SetBaseFS(nil)
	goose.SetTableName("schema_migrations")

	if err := goose.SetDialect("sqlite3"); err != nil {
		return apperr.Wrap(apperr.KindStore, err, "store: setting migration dialect")
	}

	// EnsureDBVersion creates the schema_migrations bookkeeping table (if
	// absent) without applying any migration, so the baseline-compat
	// check below always has a table to write its synthetic row into.
	if _, err := goose.EnsureDBVersionContext(ctx, s.db.DB); err != nil {
		return apperr.Wrap(apperr.KindStore, err, "store: ensuring schema_migrations table")
	}

	if err := s.resolveBaselineCompat(ctx, logger); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, s.db.DB, "migrations"); err != nil {
		return apperr.Wrap(apperr.KindStore, err, "store: applying migrations")
	}

	logger.Info("schema migrations applied")
	return nil
}

// resolveBaselineCompat implements the baseline-migration compatibility
// rule: if legacy migrations 1-8 are recorded (detected here by the
// presence of their tables, since this pack carries no legacy
// schema_migrations history to read), synthesize a baseline row at
// version 1 so goose's contiguous-version check starts from 2. On a
// greenfield install, legacyTableNames are absent and this does nothing.
func (s *Store) resolveBaselineCompat(ctx context.Context, logger *slog.Logger) error {
	for _, table := range legacyTableNames {
		exists, err := s.tableExists(ctx, table)
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}
	}

	logger.Warn("legacy schema detected, synthesizing baseline migration row", "tables", legacyTableNames)

	// goose's bookkeeping table (renamed to schema_migrations via
	// SetTableName) tracks applied versions as (version_id, is_applied,
	// tstamp); it has no "name" column of its own, so the baseline row
	// is recorded the same way goose itself would record version 1.
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO schema_migrations (version_id, is_applied, tstamp) VALUES (?, ?, CURRENT_TIMESTAMP)`),
		1, true,
	)
	if err != nil && !isUniqueViolation(err) {
		return apperr.Wrap(apperr.KindStore, err, "store: synthesizing baseline migration row")
	}
	return nil
}

func (s *Store) tableExists(ctx context.Context, name string) (bool, error) {
	const query = `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`

	var count int
	if err := s.db.GetContext(ctx, &count, s.rebind(query), name); err != nil {
		return false, apperr.Wrap(apperr.KindStore, err, "store: checking for legacy table %s", name)
	}
	return count > 0, nil
}
