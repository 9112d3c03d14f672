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
	"log/slog"
	"time"

	"github.com/stepflow-dev/stepflow/pkg/statemachine"
	"github.com/stepflow-dev/stepflow/pkg/store"
)

// Sweeper periodically transitions running executions whose timeout_ms
// has elapsed to 'failed'. It is advisory (v1 does not guarantee it runs
// promptly, or at all) and disabled by default — operators opt in via
// config.
type Sweeper struct {
	store    *store.Store
	machine  *statemachine.Machine
	logger   *slog.Logger
	interval time.Duration
	now      Clock
}

// NewSweeper constructs a Sweeper with the given poll interval. A nil
// logger defaults to slog.Default().
func NewSweeper(s *store.Store, m *statemachine.Machine, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{store: s, machine: m, logger: logger, interval: interval, now: time.Now}
}

// Run blocks, sweeping on every tick until ctx is canceled.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sw.SweepOnce(ctx); err != nil {
				sw.logger.Warn("timeout sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce scans for timed-out running executions once and transitions
// each to 'failed', emitting workflow_failed with reason=timeout. A
// failure transitioning one execution is logged and does not stop the
// sweep of the rest.
func (sw *Sweeper) SweepOnce(ctx context.Context) error {
	now := sw.now().UTC()
	timedOut, err := sw.store.ListTimedOutRunning(ctx, now)
	if err != nil {
		return err
	}

	for _, exec := range timedOut {
		duration := now.Sub(exec.StartedAt).Milliseconds()
		if err := sw.machine.Transition(ctx, exec.ExecutionID, store.ExecutionFailed, exec.CurrentStep, now, &duration); err != nil {
			sw.logger.Warn("sweeper failed to transition timed-out execution", "execution_id", exec.ExecutionID, "error", err)
			continue
		}
		metadata := `{"reason":"timeout"}`
		sw.store.Emit(ctx, sw.logger, store.EventWorkflowFailed, &exec.ExecutionID, exec.CurrentStep, nil, &metadata)
	}
	return nil
}
