// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

package convert

import (
	"fmt"
	"log/slog"
	"time"
)

// Phase is a conversion job's position in the state machine.
type Phase int

const (
	// PhaseQueued: admitted to the limiter's wait queue.
	PhaseQueued Phase = iota

	// PhaseReceived: holding a concurrency slot, not yet staged.
	PhaseReceived

	// PhaseWorkspacePrepared: workspace acquired and input written.
	PhaseWorkspacePrepared

	// PhaseEngineRunning: engine subprocess is executing.
	PhaseEngineRunning

	// Terminal phases.
	PhaseSucceeded
	PhaseEngineFailed
	PhaseTimedOut
	PhaseCancelled
	PhaseResourceExhausted
)

// String returns the phase name for logs.
func (p Phase) String() string {
	switch p {
	case PhaseQueued:
		return "queued"
	case PhaseReceived:
		return "received"
	case PhaseWorkspacePrepared:
		return "workspace_prepared"
	case PhaseEngineRunning:
		return "engine_running"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseEngineFailed:
		return "engine_failed"
	case PhaseTimedOut:
		return "timed_out"
	case PhaseCancelled:
		return "cancelled"
	case PhaseResourceExhausted:
		return "resource_exhausted"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// Terminal reports whether the phase ends the job.
func (p Phase) Terminal() bool {
	return p >= PhaseSucceeded
}

// job is the runtime record of one in-flight conversion. It lives for
// exactly one Orchestrator.Convert call; there is no cross-request
// job registry because conversions share no state.
type job struct {
	id        string
	phase     Phase
	startedAt time.Time
	logger    *slog.Logger
}

func newJob(id string, logger *slog.Logger) *job {
	return &job{
		id:        id,
		phase:     PhaseQueued,
		startedAt: time.Now(),
		logger:    logger.With("request_id", id),
	}
}

// transition advances the job's phase. Transitions are logged at
// debug; terminal phases at info with the job's total duration.
func (j *job) transition(next Phase) {
	j.phase = next
	if next.Terminal() {
		j.logger.Info("conversion finished",
			"phase", next.String(),
			"duration", time.Since(j.startedAt),
		)
		return
	}
	j.logger.Debug("conversion phase", "phase", next.String())
}
