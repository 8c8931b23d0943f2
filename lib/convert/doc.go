// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package convert orchestrates one DWG→DXF conversion from admitted
// upload to classified outcome.
//
// The [Orchestrator] is the service's state machine. A conversion
// moves through the phases Queued → Received → WorkspacePrepared →
// EngineRunning and ends in exactly one terminal phase: Succeeded,
// EngineFailed, TimedOut, Cancelled, or ResourceExhausted. The
// orchestrator drives the admission limiter, the workspace manager,
// and the engine runner, and guarantees the workspace is released
// exactly once on every exit path — including panics, which are
// recovered at this boundary and downgraded to an internal error.
//
// Every failure surfaces as an [*Error] carrying a [Kind] from the
// service's error taxonomy and a client-safe message. Nothing below
// this package decides HTTP status codes; nothing above it touches
// workspaces or processes.
package convert
