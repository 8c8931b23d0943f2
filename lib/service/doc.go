// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides process-level plumbing for the Draftbridge
// conversion service: the HTTP listener lifecycle and the structured
// logger.
//
// [HTTPServer] owns listener binding, a readiness signal, and graceful
// shutdown: Serve(ctx) blocks until the context is cancelled, then
// stops accepting connections and drains in-flight requests up to a
// configurable timeout. The caller provides the http.Handler; routing
// and request handling live with the endpoint code.
//
// [NewLogger] constructs the process-wide slog logger (JSON on
// stderr). Everything after main's first few lines logs through it.
package service
