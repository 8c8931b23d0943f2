// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/draftbridge/draftbridge/lib/convert"
	"github.com/draftbridge/draftbridge/lib/engine"
	"github.com/draftbridge/draftbridge/lib/limiter"
	"github.com/draftbridge/draftbridge/lib/service"
	"github.com/draftbridge/draftbridge/lib/testutil"
	"github.com/draftbridge/draftbridge/lib/workspace"
)

func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func readPID(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading pid file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("parsing pid file %q: %v", data, err)
	}
	return pid
}

// Server shutdown that outlives the graceful drain must kill the
// running engine subprocess and release its workspace before the
// process exits — a conversion mid-flight is cancelled, not orphaned.
func TestShutdownKillsRunningEngineAndReleasesWorkspace(t *testing.T) {
	logger := testLogger()

	pidFile := filepath.Join(t.TempDir(), "pid")
	script := testutil.EngineScript(t, `echo $$ > "`+pidFile+`"; sleep 600`)

	workspaceRoot := filepath.Join(t.TempDir(), "workspaces")
	manager, err := workspace.NewManager(workspace.ManagerConfig{
		Root:   workspaceRoot,
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	runner := engine.NewRunner(engine.RunnerConfig{
		BinaryPath:   script,
		GracePeriod:  50 * time.Millisecond,
		CaptureLimit: 4096,
		Logger:       logger,
	})
	orchestrator := convert.NewOrchestrator(convert.OrchestratorConfig{
		Workspaces: manager,
		Runner:     runner,
		Admission:  limiter.New(1, 0),
		Timeout:    time.Minute,
		Logger:     logger,
	})
	handler := NewConvertHandler(ConvertHandlerConfig{
		Orchestrator:   orchestrator,
		MaxUploadBytes: 1 << 20,
		Logger:         logger,
	})
	server := service.NewHTTPServer(service.HTTPServerConfig{
		Address:         "127.0.0.1:0",
		Handler:         handler,
		ShutdownTimeout: 300 * time.Millisecond,
		Logger:          logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()

	select {
	case <-server.Ready():
	case <-t.Context().Done():
		t.Fatal("server did not become ready before test deadline")
	}

	// Start a conversion whose engine runs far longer than the
	// shutdown budget. The response is irrelevant — the connection
	// dies with the server.
	go func() {
		response, err := http.Post(
			"http://"+server.Addr().String()+"/convert",
			"application/octet-stream",
			strings.NewReader("drawing"),
		)
		if err == nil {
			response.Body.Close()
		}
	}()

	// Wait for the engine to actually be running.
	testutil.Eventually(t, 5*time.Second, 10*time.Millisecond, func() bool {
		_, statErr := os.Stat(pidFile)
		return statErr == nil
	}, "engine did not start")
	pid := readPID(t, pidFile)

	cancel()

	select {
	case err := <-serveDone:
		if err != nil {
			t.Errorf("Serve() = %v, want nil", err)
		}
	case <-t.Context().Done():
		t.Fatal("server did not shut down before test deadline")
	}

	testutil.Eventually(t, 5*time.Second, 10*time.Millisecond, func() bool {
		return !processAlive(pid)
	}, "engine pid %d still alive after shutdown", pid)

	entries, err := os.ReadDir(workspaceRoot)
	if err != nil {
		t.Fatalf("reading workspace root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("%d workspace dir(s) still on disk after shutdown", len(entries))
	}
}
