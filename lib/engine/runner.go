// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Classification is the broker's verdict on one engine run.
type Classification int

const (
	// Success: zero exit and a non-empty output file.
	Success Classification = iota

	// EngineFailure: the engine ran and failed — non-zero exit, or
	// zero exit with a missing or empty output file.
	EngineFailure

	// TimedOut: the engine exceeded the run's wall-clock limit and
	// was killed.
	TimedOut

	// Cancelled: the caller's context was cancelled (client
	// disconnect or shutdown) and the engine was killed.
	Cancelled
)

// String returns the classification name for logs.
func (c Classification) String() string {
	switch c {
	case Success:
		return "success"
	case EngineFailure:
		return "engine_failure"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Result captures the process-level outcome of one engine run.
type Result struct {
	// Classification is the broker's verdict.
	Classification Classification

	// ExitCode is the engine's exit code, or -1 when the process was
	// killed before exiting on its own.
	ExitCode int

	// Stdout and Stderr hold the captured streams, truncated at the
	// runner's capture limit.
	Stdout []byte
	Stderr []byte

	// OutputSize is the output file's size in bytes. Only meaningful
	// for Success.
	OutputSize int64

	// Duration is the engine's wall-clock runtime.
	Duration time.Duration
}

// Diagnostic returns the captured engine output most useful in an
// error message: stderr if non-empty, otherwise stdout, trimmed.
func (r *Result) Diagnostic() string {
	text := strings.TrimSpace(string(r.Stderr))
	if text == "" {
		text = strings.TrimSpace(string(r.Stdout))
	}
	return text
}

// Runner spawns engine processes. One Runner serves all requests;
// every Run gets its own process, process group, and capture buffers,
// so concurrent runs share nothing.
type Runner struct {
	binaryPath   string
	extraEnv     map[string]string
	gracePeriod  time.Duration
	captureLimit int
	logger       *slog.Logger
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// BinaryPath is the engine binary. Required.
	BinaryPath string

	// ExtraEnv is appended to the service's environment for each
	// engine process. Library search path configuration
	// (LD_LIBRARY_PATH) goes here.
	ExtraEnv map[string]string

	// GracePeriod is how long a terminated engine gets between
	// SIGTERM and SIGKILL. Zero means immediate SIGKILL.
	GracePeriod time.Duration

	// CaptureLimit is the per-stream byte cap on captured output.
	// Required.
	CaptureLimit int

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// NewRunner creates a Runner. Panics on missing required fields —
// these are wiring mistakes, not runtime conditions.
func NewRunner(config RunnerConfig) *Runner {
	if config.BinaryPath == "" {
		panic("engine.Runner: BinaryPath is required")
	}
	if config.CaptureLimit <= 0 {
		panic("engine.Runner: CaptureLimit must be positive")
	}
	if config.Logger == nil {
		panic("engine.Runner: Logger is required")
	}
	return &Runner{
		binaryPath:   config.BinaryPath,
		extraEnv:     config.ExtraEnv,
		gracePeriod:  config.GracePeriod,
		captureLimit: config.CaptureLimit,
		logger:       config.Logger,
	}
}

// Run executes one conversion: "<binary> -o <outputPath> <inputPath>"
// under the given wall-clock timeout. Blocks until the engine exits
// or is killed. Returns a classified Result for every outcome the
// engine itself can produce (including timeout and cancellation); the
// error return is reserved for faults outside the engine contract,
// such as a missing binary.
//
// The process is placed in its own process group. On timeout or
// context cancellation the whole group receives SIGTERM, then SIGKILL
// after the grace period, so nothing the engine spawned survives the
// request.
func (r *Runner) Run(ctx context.Context, inputPath, outputPath string, timeout time.Duration) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := newCappedBuffer(r.captureLimit)
	stderr := newCappedBuffer(r.captureLimit)

	cmd := exec.CommandContext(runCtx, r.binaryPath, "-o", outputPath, inputPath)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	// Own process group so termination signals reach the engine and
	// everything it spawned (negative PID targets the group).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if r.gracePeriod > 0 {
		cmd.Cancel = func() error {
			processGroup := -cmd.Process.Pid
			if err := syscall.Kill(processGroup, syscall.SIGTERM); err != nil {
				// SIGTERM failed (group already gone), escalate.
				return syscall.Kill(processGroup, syscall.SIGKILL)
			}
			go func() {
				time.Sleep(r.gracePeriod)
				// Best-effort: ESRCH from an already-dead group is
				// harmless.
				_ = syscall.Kill(processGroup, syscall.SIGKILL)
			}()
			return nil
		}
	} else {
		cmd.Cancel = func() error {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
	}

	// Bound how long Wait lingers after Cancel for the engine's pipe
	// readers to drain. Without this, a grandchild process holding
	// the engine's stdout open could block Wait indefinitely and leak
	// file descriptors.
	cmd.WaitDelay = r.gracePeriod + 2*time.Second

	if len(r.extraEnv) > 0 {
		cmd.Env = os.Environ()
		for name, value := range r.extraEnv {
			cmd.Env = append(cmd.Env, name+"="+value)
		}
	}

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := &Result{
		ExitCode: -1,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: duration,
	}
	if dropped := stdout.Dropped() + stderr.Dropped(); dropped > 0 {
		r.logger.Warn("engine output truncated",
			"binary", r.binaryPath,
			"dropped_bytes", dropped,
		)
	}

	// Timeout and cancellation take precedence over whatever exit
	// status the kill produced.
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		result.Classification = TimedOut
		r.logger.Warn("engine timed out",
			"binary", r.binaryPath,
			"timeout", timeout,
			"duration", duration,
		)
		return result, nil
	}
	if ctx.Err() != nil {
		result.Classification = Cancelled
		r.logger.Info("engine run cancelled",
			"binary", r.binaryPath,
			"duration", duration,
		)
		return result, nil
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.Classification = EngineFailure
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		// Spawn failure, not an engine outcome: missing binary,
		// permission problem.
		return nil, fmt.Errorf("starting engine %s: %w", r.binaryPath, runErr)
	}

	// Zero exit. The exit code alone is not sufficient evidence —
	// require a non-empty output file.
	result.ExitCode = 0
	info, statErr := os.Stat(outputPath)
	if statErr != nil || info.Size() == 0 {
		result.Classification = EngineFailure
		r.logger.Warn("engine exited zero without usable output",
			"binary", r.binaryPath,
			"output", outputPath,
			"stat_error", statErr,
		)
		return result, nil
	}

	result.Classification = Success
	result.OutputSize = info.Size()
	return result, nil
}
