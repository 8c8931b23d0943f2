// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// inputFileName and outputFileName are the fixed names of the two
// files a workspace may contain. The engine is pointed at these paths
// explicitly, so the names never leave the process.
const (
	inputFileName  = "input.dwg"
	outputFileName = "output.dxf"
)

// maxCreateAttempts bounds directory-creation retries on name
// collision. UUID collisions are effectively impossible, so more than
// one attempt indicates something else is wrong with the root.
const maxCreateAttempts = 4

// ErrExhausted reports that the workspace root cannot provide space or
// a unique directory name. Callers classify this as resource
// exhaustion rather than an internal fault.
var ErrExhausted = errors.New("workspace: storage exhausted")

// Manager allocates and tears down workspaces under a single root
// directory. Safe for concurrent use: every Acquire returns an
// independent directory and the manager itself holds no per-request
// state.
type Manager struct {
	root         string
	minFreeBytes int64
	logger       *slog.Logger
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Root is the directory under which workspaces are created. It is
	// created (with parents) if it does not exist. Required.
	Root string

	// MinFreeBytes is the minimum free space required on the root
	// filesystem for Acquire to succeed. Zero disables the preflight.
	MinFreeBytes int64

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// NewManager creates a Manager rooted at config.Root, creating the
// root directory if needed.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.Root == "" {
		return nil, fmt.Errorf("workspace: root directory is required")
	}
	if config.Logger == nil {
		panic("workspace.Manager: Logger is required")
	}
	if err := os.MkdirAll(config.Root, 0o700); err != nil {
		return nil, fmt.Errorf("creating workspace root %s: %w", config.Root, err)
	}
	return &Manager{
		root:         config.Root,
		minFreeBytes: config.MinFreeBytes,
		logger:       config.Logger,
	}, nil
}

// Acquire creates a fresh, collision-free workspace directory and
// returns its handle. The caller owns the workspace and must call
// Release exactly once when done, on every exit path.
//
// Returns an error wrapping [ErrExhausted] when the root filesystem is
// below the free-space floor, reports no space during creation, or a
// unique name cannot be found within the retry bound.
func (m *Manager) Acquire() (*Workspace, error) {
	if m.minFreeBytes > 0 {
		free, err := freeBytes(m.root)
		if err != nil {
			return nil, fmt.Errorf("checking free space on %s: %w", m.root, err)
		}
		if free < m.minFreeBytes {
			return nil, fmt.Errorf("%w: %d bytes free on %s, need %d",
				ErrExhausted, free, m.root, m.minFreeBytes)
		}
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id := uuid.NewString()
		path := filepath.Join(m.root, "convert-"+id)
		err := os.Mkdir(path, 0o700)
		if err == nil {
			return &Workspace{id: id, path: path, logger: m.logger}, nil
		}
		if os.IsExist(err) {
			continue
		}
		if errors.Is(err, unix.ENOSPC) {
			return nil, fmt.Errorf("%w: creating %s: %v", ErrExhausted, path, err)
		}
		return nil, fmt.Errorf("creating workspace directory: %w", err)
	}
	return nil, fmt.Errorf("%w: no unique workspace name after %d attempts",
		ErrExhausted, maxCreateAttempts)
}

// freeBytes returns the bytes available to unprivileged callers on the
// filesystem containing path.
func freeBytes(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}

// Workspace is one request's scratch directory. It holds at most two
// files: the uploaded input and the engine's output.
type Workspace struct {
	id     string
	path   string
	logger *slog.Logger

	// released flips once, making Release idempotent. The removal
	// happens on the first call only.
	released atomic.Bool
}

// ID returns the workspace's unique identifier.
func (w *Workspace) ID() string { return w.id }

// Path returns the workspace directory.
func (w *Workspace) Path() string { return w.path }

// InputPath returns the path the input file is written to.
func (w *Workspace) InputPath() string { return filepath.Join(w.path, inputFileName) }

// OutputPath returns the path the engine is expected to write.
func (w *Workspace) OutputPath() string { return filepath.Join(w.path, outputFileName) }

// WriteInput streams the uploaded bytes into the workspace's input
// file and returns the number of bytes written. Exhausted storage
// during the copy is reported as [ErrExhausted].
func (w *Workspace) WriteInput(reader io.Reader) (int64, error) {
	file, err := os.OpenFile(w.InputPath(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, fmt.Errorf("creating input file: %w", err)
	}
	written, copyErr := io.Copy(file, reader)
	closeErr := file.Close()
	if copyErr != nil {
		if errors.Is(copyErr, unix.ENOSPC) {
			return written, fmt.Errorf("%w: writing input: %v", ErrExhausted, copyErr)
		}
		return written, fmt.Errorf("writing input file: %w", copyErr)
	}
	if closeErr != nil {
		return written, fmt.Errorf("closing input file: %w", closeErr)
	}
	return written, nil
}

// ReadOutput reads the engine's output file. Must be called before
// Release — the bytes are gone once the workspace is torn down.
func (w *Workspace) ReadOutput() ([]byte, error) {
	data, err := os.ReadFile(w.OutputPath())
	if err != nil {
		return nil, fmt.Errorf("reading output file: %w", err)
	}
	return data, nil
}

// Release removes the workspace directory tree. Idempotent: only the
// first call performs the removal, later calls are no-ops. A removal
// failure is logged and not retried — cleanup failure must never fail
// an otherwise-successful conversion.
func (w *Workspace) Release() {
	if !w.released.CompareAndSwap(false, true) {
		return
	}
	if err := os.RemoveAll(w.path); err != nil {
		w.logger.Error("workspace release failed",
			"workspace", w.id,
			"error", err,
		)
	}
}
