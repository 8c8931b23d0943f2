// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package workspace manages per-request scratch directories for
// conversions.
//
// Each conversion gets exactly one [Workspace]: a uniquely named
// directory under the manager's root holding the uploaded input file
// and, after a successful engine run, the output file. A workspace is
// owned by a single request and is never shared.
//
// [Manager.Acquire] performs a free-space preflight on the root
// filesystem before creating the directory, so a full disk surfaces as
// a classified resource-exhaustion error instead of a mid-conversion
// write failure. [Workspace.Release] removes the directory tree. It is
// idempotent, tolerates partial or already-missing state, and never
// fails the request: a removal error is logged once for operational
// visibility and not retried.
//
// This package has no dependencies on other Draftbridge packages.
package workspace
