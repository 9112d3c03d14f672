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

import "time"

// ExecutionState enumerates the legal values of Execution.State.
type ExecutionState string

const (
	ExecutionIdle      ExecutionState = "idle"
	ExecutionRunning   ExecutionState = "running"
	ExecutionPaused    ExecutionState = "paused"
	ExecutionCompleted ExecutionState = "completed"
	ExecutionFailed    ExecutionState = "failed"
	ExecutionAbandoned ExecutionState = "abandoned"
	ExecutionDiverged  ExecutionState = "diverged"
)

// IsTerminal reports whether s is one of the terminal execution states.
func (s ExecutionState) IsTerminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionAbandoned, ExecutionDiverged:
		return true
	default:
		return false
	}
}

// StepStatus enumerates the legal values of Step.Status.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// ArtifactType enumerates the legal values of Artifact.ArtifactType.
type ArtifactType string

const (
	ArtifactFile    ArtifactType = "file"
	ArtifactData    ArtifactType = "data"
	ArtifactReport  ArtifactType = "report"
	ArtifactFinding ArtifactType = "finding"
)

// ContentType enumerates the legal values of Artifact.ContentType.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentMarkdown ContentType = "markdown"
	ContentJSON     ContentType = "json"
	ContentBinary   ContentType = "binary"
)

// FindingScope enumerates the legal values of KnowledgeFinding.Scope.
type FindingScope string

const (
	ScopeGlobal  FindingScope = "global"
	ScopeProject FindingScope = "project"
	ScopeSystem  FindingScope = "system"
)

// FindingCategory enumerates the legal values of KnowledgeFinding.Category.
type FindingCategory string

const (
	CategorySecurity     FindingCategory = "security"
	CategoryArchitecture FindingCategory = "architecture"
	CategoryPerformance  FindingCategory = "performance"
	CategoryConstraint   FindingCategory = "constraint"
	CategoryPattern      FindingCategory = "pattern"
)

// FindingSeverity enumerates the legal values of KnowledgeFinding.Severity,
// in ascending order (used to drive ORDER BY severity DESC via a CASE
// expression since the column is stored as text).
type FindingSeverity string

const (
	SeverityInfo     FindingSeverity = "info"
	SeverityLow      FindingSeverity = "low"
	SeverityMedium   FindingSeverity = "medium"
	SeverityHigh     FindingSeverity = "high"
	SeverityCritical FindingSeverity = "critical"
)

// FindingStatus enumerates the legal values of KnowledgeFinding.Status.
type FindingStatus string

const (
	FindingActive     FindingStatus = "active"
	FindingDeprecated FindingStatus = "deprecated"
)

// Execution is one row per workflow invocation.
type Execution struct {
	ExecutionID  string         `db:"execution_id" json:"execution_id"`
	WorkflowName string         `db:"workflow_name" json:"workflow_name"`
	State        ExecutionState `db:"state" json:"state"`
	CurrentStep  *string        `db:"current_step" json:"current_step,omitempty"`
	StartedAt    time.Time      `db:"started_at" json:"started_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
	CompletedAt  *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	DurationMs   *int64         `db:"duration_ms" json:"duration_ms,omitempty"`
	TimeoutMs    *int64         `db:"timeout_ms" json:"timeout_ms,omitempty"`
	ProjectID    *int64         `db:"project_id" json:"project_id,omitempty"`
	Metadata     *string        `db:"metadata" json:"metadata,omitempty"`
}

// Step is one row per phase entered within an execution.
type Step struct {
	ID          int64      `db:"id" json:"id"`
	ExecutionID string     `db:"execution_id" json:"execution_id"`
	StepName    string     `db:"step_name" json:"step_name"`
	AgentName   string     `db:"agent_name" json:"agent_name"`
	Status      StepStatus `db:"status" json:"status"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	DurationMs  *int64     `db:"duration_ms" json:"duration_ms,omitempty"`
	Output      *string    `db:"output" json:"output,omitempty"`
	Token       *string    `db:"token" json:"-"`
}

// Artifact is an immutable output produced during a step.
type Artifact struct {
	ID           int64        `db:"id" json:"id"`
	ExecutionID  string       `db:"execution_id" json:"execution_id"`
	StepName     string       `db:"step_name" json:"step_name"`
	ArtifactType ArtifactType `db:"artifact_type" json:"artifact_type"`
	Name         string       `db:"name" json:"name"`
	Content      string       `db:"content" json:"content"`
	ContentType  ContentType  `db:"content_type" json:"content_type"`
	SizeBytes    int64        `db:"size_bytes" json:"size_bytes"`
	Metadata     *string      `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
}

// TelemetryEvent is an append-only observability record.
type TelemetryEvent struct {
	ID          int64     `db:"id" json:"id"`
	EventType   string    `db:"event_type" json:"event_type"`
	ExecutionID *string   `db:"execution_id" json:"execution_id,omitempty"`
	StepName    *string   `db:"step_name" json:"step_name,omitempty"`
	AgentName   *string   `db:"agent_name" json:"agent_name,omitempty"`
	Metadata    *string   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Recognized telemetry event types (§3).
const (
	EventWorkflowCreated         = "workflow_created"
	EventWorkflowStarted         = "workflow_started"
	EventWorkflowCompleted       = "workflow_completed"
	EventWorkflowFailed          = "workflow_failed"
	EventWorkflowStateTransition = "workflow_state_transition"
	EventStepStarted             = "step_started"
	EventStepCompleted           = "step_completed"
	EventStepFailed              = "step_failed"
	EventTokenGenerated          = "token_generated"
	EventTokenValidated          = "token_validated"
	EventTokenExpired            = "token_expired"
	EventArtifactStored          = "artifact_stored"
	EventError                   = "error"
)

// KnowledgeFinding is a persistent cross-execution insight.
type KnowledgeFinding struct {
	ID                int64           `db:"id" json:"id"`
	Scope             FindingScope    `db:"scope" json:"scope"`
	ProjectID         *int64          `db:"project_id" json:"project_id,omitempty"`
	Category          FindingCategory `db:"category" json:"category"`
	Severity          FindingSeverity `db:"severity" json:"severity"`
	Status            FindingStatus   `db:"status" json:"status"`
	Title             string          `db:"title" json:"title"`
	Content           string          `db:"content" json:"content"`
	Tags              *string         `db:"tags" json:"tags,omitempty"`
	SourceExecutionID *string         `db:"source_execution_id" json:"source_execution_id,omitempty"`
	SourceAgent       *string         `db:"source_agent" json:"source_agent,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// Project is a discovered code repository associated with executions.
type Project struct {
	ID           int64      `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Path         string     `db:"path" json:"path"`
	IsGitRepo    bool       `db:"is_git_repo" json:"is_git_repo"`
	Metadata     *string    `db:"metadata" json:"metadata,omitempty"`
	DiscoveredAt time.Time  `db:"discovered_at" json:"discovered_at"`
	LastUsedAt   *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
}

// severityRank maps FindingSeverity to a sortable rank, used to express
// "ORDER BY severity DESC" in SQL via a CASE expression since severity is
// stored as text, not an integer.
var severityRank = map[FindingSeverity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// severityOrderCase is the SQL fragment used in ORDER BY clauses to sort
// findings by severity descending.
const severityOrderCase = `CASE severity
	WHEN 'critical' THEN 4
	WHEN 'high' THEN 3
	WHEN 'medium' THEN 2
	WHEN 'low' THEN 1
	WHEN 'info' THEN 0
	ELSE -1 END DESC`
