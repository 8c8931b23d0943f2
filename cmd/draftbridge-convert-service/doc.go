// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the Draftbridge conversion service — an
// HTTP service that converts uploaded DWG drawings to DXF by driving
// an external conversion engine (dwg2dxf or compatible) as a
// supervised subprocess.
//
// Each conversion runs in an isolated scratch workspace with fixed
// input/output filenames, so uploaded content never influences the
// engine command line. Admission control bounds concurrent engine
// processes to the configured slot count with a FIFO queue behind
// them; requests past the queue are rejected as overloaded rather
// than piling up.
//
// # Endpoints
//
//   - POST /convert       — upload a DWG (multipart field "file" or
//     raw request body), receive the DXF as an attachment
//   - GET  /              — plain-text service banner
//   - GET  /healthz       — liveness probe
//   - GET  /openapi.json  — API description
//
// Configuration comes from a YAML file named by --config or the
// DRAFTBRIDGE_CONFIG environment variable; the service runs on
// built-in defaults when neither is set.
package main
