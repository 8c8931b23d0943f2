// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Draftbridge
// packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls.
//
// [Eventually] polls a condition until it holds or a deadline passes.
// Conversion tests exercise real subprocesses, whose exit and cleanup
// are observable only by polling the outside world (process liveness,
// directory absence).
//
// [EngineScript] writes an executable shell script standing in for the
// external conversion engine. The engine contract is purely
// argv-level — a binary invoked as "engine -o <output> <input>" — so a
// script double exercises the broker exactly as the real engine does,
// with controllable exit codes, output, and hangs.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no dependencies on other Draftbridge packages.
package testutil
