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

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/stepflow-dev/stepflow/pkg/config"
	"github.com/stepflow-dev/stepflow/pkg/knowledge"
	"github.com/stepflow-dev/stepflow/pkg/logger"
	"github.com/stepflow-dev/stepflow/pkg/store"
)

// MigrateCmd applies pending goose migrations to the configured store,
// optionally seeding it with demo knowledge findings.
type MigrateCmd struct{}

func (c *MigrateCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	level, _ := logger.ParseLevel(cfg.Logger.Level)
	logger.Init(level, os.Stderr, cfg.Logger.Format)
	log := logger.GetLogger()

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := s.Migrate(ctx, log); err != nil {
		return fmt.Errorf("stepflow: migrate: %w", err)
	}
	log.Info("migrations applied")

	if cfg.Store.SeedDB {
		if err := seedDemoFindings(ctx, s); err != nil {
			return fmt.Errorf("stepflow: seed: %w", err)
		}
		log.Info("seeded demo knowledge findings")
	}

	return nil
}

// seedDemoFindings inserts a handful of global-scope findings so a fresh
// database has something to show through the C7 knowledge resources.
func seedDemoFindings(ctx context.Context, s *store.Store) error {
	svc := knowledge.New(s, nil)
	now := time.Now().UTC()

	demo := []store.KnowledgeFinding{
		{
			Scope:    store.ScopeGlobal,
			Category: store.CategoryPattern,
			Severity: store.SeverityInfo,
			Title:    "Sequential phase resolution",
			Content:  "Workflows advance through phases strictly in the order their definition lists, with no branching in v1.",
		},
		{
			Scope:    store.ScopeGlobal,
			Category: store.CategoryConstraint,
			Severity: store.SeverityLow,
			Title:    "Continuation tokens are single-use per step",
			Content:  "A token is valid exactly as long as its step remains the execution's current_step; completing the step invalidates every token issued for it, reissued or not.",
		},
	}

	for i := range demo {
		if _, err := svc.Record(ctx, &demo[i], now); err != nil {
			return err
		}
	}
	return nil
}
