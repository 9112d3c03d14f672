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

// Package store implements the durable tabular state (C2): executions,
// steps, artifacts, telemetry, knowledge findings, and projects, behind a
// single-writer transactional database/sql connection. Reads may run
// concurrently with writes; every write that spans more than one
// statement goes through WithTx so "complete step + advance phase + issue
// token" commits atomically.
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
)

// Dialect identifies which SQL backend a Store talks to. The schema
// (partial indexes, AFTER UPDATE triggers, the knowledge_findings_fts
// virtual table) is SQLite-specific, so DialectSQLite is the only value
// Open currently accepts; the type stays distinct from a bare string so
// a future dialect has a single switch to extend rather than a string
// threaded through every call site.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
)

// Store is the single-writer transactional database. writerMu serializes
// every write-path operation (C3 transitions, C4 step advance, C5
// telemetry appends, C6 mutations) while reads (C7 projections) proceed
// unblocked, matching the read-committed/linearizable-write concurrency
// model.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	writerMu sync.Mutex
}

// Open dials the database identified by dialect/dsn and returns a Store
// ready for migration. For DialectSQLite, dsn is a filesystem path (or
// ":memory:"); the connection pool is capped to a single connection since
// SQLite serializes writers internally and the Store adds its own
// writerMu on top for cross-dialect uniformity.
func Open(dialect Dialect, dsn string) (*Store, error) {
	driverName, dataSource, err := driverAndDSN(dialect, dsn)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driverName, dataSource)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "store: opening %s database", dialect)
	}

	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.KindStore, err, "store: pinging %s database", dialect)
	}

	return &Store{db: db, dialect: dialect}, nil
}

func driverAndDSN(dialect Dialect, dsn string) (string, string, error) {
	switch dialect {
	case DialectSQLite:
		return "sqlite3", dsn, nil
	default:
		return "", "", apperr.New(apperr.KindInput, "store: unknown dialect %q", dialect)
	}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sqlx.DB for migrations and read-path
// projections that do not require the writer lock.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect reports which SQL backend this Store targets.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// rebind converts a query written in '?' placeholder syntax into the
// target dialect's native placeholder style (sqlx.Rebind handles the
// $1/$2/? translation; MySQL and SQLite both already use '?').
func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}

// WithTx runs fn inside a single transaction, serialized against every
// other write-path caller via writerMu, and commits iff fn returns nil.
// Any error rolls the transaction back in full: no partial advance, no
// orphan rows, per the atomicity requirement on the step executor.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "store: beginning transaction")
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return apperr.Wrap(apperr.KindStore, rbErr, "store: rollback after %v", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindStore, err, "store: committing transaction")
	}
	return nil
}

// isUniqueViolation reports whether err represents a unique-constraint
// violation, independent of dialect-specific driver error types. Used to
// translate a duplicate (execution_id, step_name) insert into the
// DuplicateStep reason, and a duplicate execution_id into
// DuplicateExecutionId.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "Duplicate entry")
}
