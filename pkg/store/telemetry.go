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
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
)

// EmitTx appends a telemetry event inside tx — used when the event is
// part of an already-open write transaction (step completion, phase
// advance) so it commits atomically with the state it describes.
func EmitTx(ctx context.Context, tx *sqlx.Tx, eventType string, executionID, stepName, agentName *string, metadata *string, now time.Time) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO telemetry_events (event_type, execution_id, step_name, agent_name, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		eventType, executionID, stepName, agentName, metadata, now,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "store: appending telemetry event %s", eventType)
	}
	return nil
}

// Emit appends a telemetry event outside any transaction. Per the
// append-only contract, a failure here MUST NOT fail the enclosing
// operation — the caller logs and moves on instead of propagating the
// error.
func (s *Store) Emit(ctx context.Context, logger *slog.Logger, eventType string, executionID, stepName, agentName *string, metadata *string) {
	if logger == nil {
		logger = slog.Default()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO telemetry_events (event_type, execution_id, step_name, agent_name, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		eventType, executionID, stepName, agentName, metadata, time.Now().UTC(),
	)
	if err != nil {
		logger.Warn("telemetry append failed", "event_type", eventType, "error", err)
	}
}

// ListTelemetry returns recent telemetry events, most recent first,
// optionally scoped to one execution and/or one event type. limit is
// clamped to [1, 1000]; a non-positive limit defaults to 100.
func (s *Store) ListTelemetry(ctx context.Context, executionID, eventType string, limit int) ([]TelemetryEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `SELECT id, event_type, execution_id, step_name, agent_name, metadata, created_at FROM telemetry_events WHERE 1=1`
	var args []interface{}
	if executionID != "" {
		query += ` AND execution_id = ?`
		args = append(args, executionID)
	}
	if eventType != "" {
		query += ` AND event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	var events []TelemetryEvent
	if err := s.db.SelectContext(ctx, &events, s.rebind(query), args...); err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "store: listing telemetry events")
	}
	return events, nil
}
