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

// Package content implements the content provider adapter (C9): the
// interface the core depends on to load workflow and agent definitions
// from an injected source. The core never knows where a Definition came
// from — this package's filesystem implementation is one possible
// backend among others (a database-backed or embedded one could satisfy
// the same interface).
package content

import "github.com/stepflow-dev/stepflow/pkg/workflow"

// Provider is the interface the executor and resource handlers depend
// on. Implementations may cache, hot-reload, or fetch remotely; callers
// only see the resolved Definition/Agent values.
type Provider interface {
	// GetWorkflow returns the named workflow definition, or (nil, nil) if
	// no such workflow is known.
	GetWorkflow(name string) (*workflow.Definition, error)
	// GetAgent returns the named agent persona, or (nil, nil) if absent.
	GetAgent(name string) (*workflow.Agent, error)
	// ListWorkflows returns a summary of every known workflow.
	ListWorkflows() ([]workflow.Summary, error)
}
