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

package executor

import (
	"context"
	"testing"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
	"github.com/stepflow-dev/stepflow/pkg/store"
)

func TestExecutor_Abandon_TransitionsToAbandoned(t *testing.T) {
	exec, s := newTestExecutor(t)
	def := demoDefinition()

	if _, err := exec.Start(context.Background(), def, "exec-abandon"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := exec.Abandon(context.Background(), "exec-abandon"); err != nil {
		t.Fatalf("Abandon() error = %v", err)
	}

	got, err := s.GetExecution(context.Background(), "exec-abandon")
	if err != nil {
		t.Fatalf("GetExecution() error = %v", err)
	}
	if got.State != store.ExecutionAbandoned {
		t.Fatalf("State = %v, want abandoned", got.State)
	}
}

func TestExecutor_Abandon_UnknownExecutionFails(t *testing.T) {
	exec, _ := newTestExecutor(t)

	err := exec.Abandon(context.Background(), "no-such-execution")
	if apperr.ReasonOf(err) != apperr.ReasonExecutionNotFound {
		t.Fatalf("expected ReasonExecutionNotFound, got %v (err=%v)", apperr.ReasonOf(err), err)
	}
}

func TestExecutor_Abandon_AlreadyTerminalFails(t *testing.T) {
	exec, _ := newTestExecutor(t)
	def := demoDefinition()

	if _, err := exec.Start(context.Background(), def, "exec-already-done"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := exec.Abandon(context.Background(), "exec-already-done"); err != nil {
		t.Fatalf("first Abandon() error = %v", err)
	}

	err := exec.Abandon(context.Background(), "exec-already-done")
	if apperr.ReasonOf(err) != apperr.ReasonInvalidTransition {
		t.Fatalf("expected ReasonInvalidTransition abandoning a terminal execution, got %v (err=%v)", apperr.ReasonOf(err), err)
	}
}

func TestExecutor_ReissueToken_MintsFreshTokenForCurrentStep(t *testing.T) {
	exec, s := newTestExecutor(t)
	def := demoDefinition()

	start, err := exec.Start(context.Background(), def, "exec-reissue")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	result, err := exec.ReissueToken(context.Background(), def, "exec-reissue")
	if err != nil {
		t.Fatalf("ReissueToken() error = %v", err)
	}
	if result.StepName != "plan" || result.AgentName != "planner" {
		t.Fatalf("ReissueToken() result = %+v, want step=plan agent=planner", result)
	}
	if result.NewToken == "" || result.NewToken == start.NewToken {
		t.Fatalf("ReissueToken() returned token %q, want a fresh non-empty value distinct from %q", result.NewToken, start.NewToken)
	}

	// Single-use enforcement is the current-step cross-check, not a
	// stored-token comparison, so the reissued token — still naming the
	// same execution/step — completes the step just like the original
	// would have.
	if _, err := exec.Continue(context.Background(), def, result.NewToken, Output{Summary: "fresh"}); err != nil {
		t.Fatalf("Continue() with the reissued token error = %v", err)
	}
}

func TestExecutor_ReissueToken_UnknownExecutionFails(t *testing.T) {
	exec, _ := newTestExecutor(t)
	def := demoDefinition()

	_, err := exec.ReissueToken(context.Background(), def, "no-such-execution")
	if apperr.ReasonOf(err) != apperr.ReasonExecutionNotFound {
		t.Fatalf("expected ReasonExecutionNotFound, got %v (err=%v)", apperr.ReasonOf(err), err)
	}
}
