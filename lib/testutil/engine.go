// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// EngineScript writes an executable /bin/sh script into a fresh temp
// directory and returns its path. The script body receives the
// engine's argv: $1 is "-o", $2 the output path, $3 the input path.
//
// Common doubles:
//
//	// success: copy input to output
//	testutil.EngineScript(t, `cp "$3" "$2"`)
//
//	// failure with diagnostics
//	testutil.EngineScript(t, `echo "invalid DWG header" >&2; exit 3`)
//
//	// hang until killed
//	testutil.EngineScript(t, `sleep 600`)
//
// The script is removed with the test's temp directory.
func EngineScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-engine")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing engine script: %v", err)
	}
	return path
}

// CountingEngineScript is EngineScript plus an invocation counter: the
// script appends one line to the returned count file each time it
// runs. Tests assert on invocation count by counting lines, typically
// to prove the engine was never started for a rejected request.
func CountingEngineScript(t *testing.T, body string) (scriptPath, countPath string) {
	t.Helper()
	dir := t.TempDir()
	countPath = filepath.Join(dir, "invocations")
	scriptPath = filepath.Join(dir, "fake-engine")
	script := "#!/bin/sh\necho run >> \"" + countPath + "\"\n" + body + "\n"
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		t.Fatalf("writing engine script: %v", err)
	}
	return scriptPath, countPath
}

// Invocations returns how many times a CountingEngineScript ran. A
// missing count file means zero runs.
func Invocations(t *testing.T, countPath string) int {
	t.Helper()
	data, err := os.ReadFile(countPath)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatalf("reading invocation count: %v", err)
	}
	count := 0
	for _, b := range data {
		if b == '\n' {
			count++
		}
	}
	return count
}
