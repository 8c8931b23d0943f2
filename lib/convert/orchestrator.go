// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

package convert

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/draftbridge/draftbridge/lib/engine"
	"github.com/draftbridge/draftbridge/lib/limiter"
	"github.com/draftbridge/draftbridge/lib/workspace"
)

// Request is one inbound conversion: the uploaded DWG bytes plus
// declared metadata. The body is streamed, not buffered — it is read
// exactly once, directly into the workspace.
type Request struct {
	// ID correlates logs, the response header, and the error
	// payload. Chosen by the transport layer.
	ID string

	// Filename is the client's declared filename. May be empty for
	// raw uploads.
	Filename string

	// Body yields the DWG bytes. A read that exceeds the upload
	// limit must surface ErrInputTooLarge.
	Body io.Reader
}

// Outcome is a successful conversion's terminal result.
type Outcome struct {
	// DXF is the engine's output, byte-identical to the file the
	// engine wrote in the workspace.
	DXF []byte

	// Size is len(DXF), kept separately because it is part of the
	// outcome contract, not a derived convenience.
	Size int64

	// Digest is the hex BLAKE3 digest of DXF, exposed in the
	// response for integrity checking and logged for correlation.
	Digest string

	// EngineDuration is the engine subprocess's wall-clock runtime.
	EngineDuration time.Duration
}

// Orchestrator drives conversions through the state machine. One
// instance serves all requests; all per-request state lives in the
// Convert call frame, so the orchestrator itself needs no locking.
type Orchestrator struct {
	workspaces *workspace.Manager
	runner     *engine.Runner
	admission  *limiter.Limiter
	timeout    time.Duration
	logger     *slog.Logger
}

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	// Workspaces allocates per-request scratch directories. Required.
	Workspaces *workspace.Manager

	// Runner spawns engine processes. Required.
	Runner *engine.Runner

	// Admission bounds concurrent conversions. Required.
	Admission *limiter.Limiter

	// Timeout is the per-conversion engine time budget. Required.
	Timeout time.Duration

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator. Panics on missing
// dependencies — these are wiring mistakes, not runtime conditions.
func NewOrchestrator(config OrchestratorConfig) *Orchestrator {
	if config.Workspaces == nil {
		panic("convert.Orchestrator: Workspaces is required")
	}
	if config.Runner == nil {
		panic("convert.Orchestrator: Runner is required")
	}
	if config.Admission == nil {
		panic("convert.Orchestrator: Admission is required")
	}
	if config.Timeout <= 0 {
		panic("convert.Orchestrator: Timeout must be positive")
	}
	if config.Logger == nil {
		panic("convert.Orchestrator: Logger is required")
	}
	return &Orchestrator{
		workspaces: config.Workspaces,
		runner:     config.Runner,
		admission:  config.Admission,
		timeout:    config.Timeout,
		logger:     config.Logger,
	}
}

// Convert runs one conversion end to end and returns either a
// successful Outcome or an *Error from the taxonomy. This is the
// recovery boundary: no error or panic from below escapes
// unclassified, and the workspace — once acquired — is released on
// every path.
func (o *Orchestrator) Convert(ctx context.Context, request Request) (outcome *Outcome, err error) {
	job := newJob(request.ID, o.logger)

	defer func() {
		if recovered := recover(); recovered != nil {
			job.logger.Error("panic during conversion", "panic", recovered)
			outcome = nil
			err = NewError(KindInternal, "internal error")
		}
		if err != nil {
			job.fail(Classify(err))
		}
	}()

	// Admission. Queued until the limiter grants a slot or rejects.
	if acquireErr := o.admission.Acquire(ctx); acquireErr != nil {
		if errors.Is(acquireErr, limiter.ErrOverloaded) {
			return nil, NewError(KindOverloaded, "too many conversions in progress, try again later")
		}
		return nil, WrapError(KindCancelled, "request cancelled while queued", acquireErr)
	}
	defer o.admission.Release()
	job.transition(PhaseReceived)

	// Stage the workspace and stream the upload into it.
	ws, acquireErr := o.workspaces.Acquire()
	if acquireErr != nil {
		if errors.Is(acquireErr, workspace.ErrExhausted) {
			return nil, WrapError(KindResourceExhausted, "temporary storage unavailable", acquireErr)
		}
		return nil, fmt.Errorf("acquiring workspace: %w", acquireErr)
	}
	defer ws.Release()
	job.logger.Debug("workspace acquired", "workspace", ws.ID())

	written, writeErr := ws.WriteInput(request.Body)
	if writeErr != nil {
		switch {
		case errors.Is(writeErr, ErrInputTooLarge):
			return nil, NewError(KindInvalidInput, "uploaded file exceeds the size limit")
		case errors.Is(writeErr, workspace.ErrExhausted):
			return nil, WrapError(KindResourceExhausted, "temporary storage unavailable", writeErr)
		case ctx.Err() != nil:
			return nil, WrapError(KindCancelled, "client disconnected during upload", writeErr)
		default:
			return nil, fmt.Errorf("writing input: %w", writeErr)
		}
	}
	if written == 0 {
		return nil, NewError(KindInvalidInput, "uploaded file is empty")
	}
	job.transition(PhaseWorkspacePrepared)

	// Run the engine.
	job.transition(PhaseEngineRunning)
	result, runErr := o.runner.Run(ctx, ws.InputPath(), ws.OutputPath(), o.timeout)
	if runErr != nil {
		return nil, fmt.Errorf("running engine: %w", runErr)
	}

	switch result.Classification {
	case engine.Success:
		// Read the output before the deferred release destroys it.
		output, readErr := ws.ReadOutput()
		if readErr != nil {
			return nil, fmt.Errorf("reading engine output: %w", readErr)
		}
		digest := blake3.Sum256(output)
		job.transition(PhaseSucceeded)
		return &Outcome{
			DXF:            output,
			Size:           int64(len(output)),
			Digest:         hex.EncodeToString(digest[:]),
			EngineDuration: result.Duration,
		}, nil

	case engine.TimedOut:
		return nil, NewError(KindTimedOut, fmt.Sprintf("conversion exceeded the %s time limit", o.timeout))

	case engine.Cancelled:
		return nil, NewError(KindCancelled, "request cancelled during conversion")

	default:
		convErr := NewError(KindEngineFailure, engineFailureMessage(result, ws.Path()))
		convErr.ExitCode = result.ExitCode
		return nil, convErr
	}
}

// engineFailureMessage builds the client-facing message for a failed
// engine run. The engine's diagnostics are included (they are the
// only clue the client gets), but workspace paths are redacted first —
// internal filesystem layout never leaves the service.
func engineFailureMessage(result *engine.Result, workspacePath string) string {
	diagnostic := strings.ReplaceAll(result.Diagnostic(), workspacePath, "<workspace>")
	if diagnostic == "" {
		return fmt.Sprintf("conversion engine failed (exit code %d)", result.ExitCode)
	}
	return fmt.Sprintf("conversion engine failed (exit code %d): %s", result.ExitCode, diagnostic)
}

// fail records a terminal failure phase matching the error kind.
func (j *job) fail(e *Error) {
	switch e.Kind {
	case KindEngineFailure:
		j.transition(PhaseEngineFailed)
	case KindTimedOut:
		j.transition(PhaseTimedOut)
	case KindCancelled:
		j.transition(PhaseCancelled)
	case KindResourceExhausted:
		j.transition(PhaseResourceExhausted)
	default:
		// InvalidInput, Overloaded, and internal faults have no
		// dedicated terminal phase; log the kind directly.
		j.logger.Info("conversion rejected",
			"kind", string(e.Kind),
			"duration", time.Since(j.startedAt),
		)
	}
}
