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
	"fmt"
	"os"
	"path/filepath"

	"github.com/stepflow-dev/stepflow/pkg/config"
)

const seedWorkflowYAML = `name: review
phases:
  - phase: plan
    agent: planner
  - phase: implement
    agent: implementer
  - phase: review
    agent: reviewer
`

const seedPlannerAgent = `---
description: Breaks the request into a concrete implementation plan.
---
Read the request and produce a short, numbered implementation plan.
Submit it as your step summary; do not write code yet.
`

const seedImplementerAgent = `---
description: Carries out the plan produced by the planner.
---
Follow the plan from the previous step and make the described changes.
Record every file you touched as an artifact.
`

const seedReviewerAgent = `---
description: Reviews the implementation for correctness before completion.
---
Check the implementation against the original request. Flag anything
that looks wrong as a suggested finding rather than silently accepting it.
`

// SeedCmd writes a starter workflow and its agents into the configured
// content directory, so a fresh checkout has something runnable.
type SeedCmd struct {
	Force bool `help:"Overwrite files that already exist."`
}

func (c *SeedCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	root := cfg.Content.ContentPath
	files := map[string]string{
		filepath.Join(root, "workflows", "review.yaml"): seedWorkflowYAML,
		filepath.Join(root, "agents", "planner.md"):      seedPlannerAgent,
		filepath.Join(root, "agents", "implementer.md"):  seedImplementerAgent,
		filepath.Join(root, "agents", "reviewer.md"):     seedReviewerAgent,
	}

	for path, content := range files {
		if !c.Force {
			if _, err := os.Stat(path); err == nil {
				fmt.Printf("skip (exists): %s\n", path)
				continue
			}
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("stepflow: seed: %w", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("stepflow: seed: %w", err)
		}
		fmt.Printf("wrote: %s\n", path)
	}

	return nil
}
