// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine brokers runs of the external conversion engine.
//
// The engine is an independently maintained binary (LibreDWG's
// dwg2dxf by default) invoked as "engine -o <output> <input>". All
// CAD format knowledge lives in that binary; this package's job is
// the process lifecycle: spawn the engine in its own process group,
// enforce a wall-clock timeout, capture bounded stdout/stderr,
// guarantee the process is dead on every exit path, and classify the
// outcome.
//
// Cancellation and timeout both terminate the process group — SIGTERM
// first, escalating to SIGKILL after a configured grace period — so a
// misbehaving engine cannot outlive its request, and helpers it
// spawned die with it. A timed-out run is never reported as success,
// even if a partial output file was written: partial conversions are
// not trustworthy.
//
// A zero exit code alone is also not trusted as evidence of success.
// [Runner.Run] reports [Success] only when the engine exits zero and
// the expected output file exists and is non-empty; any other
// combination is [EngineFailure].
package engine
