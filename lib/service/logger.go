// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"log/slog"
	"os"
)

// NewLogger creates the process-wide structured logger: JSON on
// stderr at info level, also installed as the slog default so stray
// slog calls in dependencies land in the same stream.
func NewLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}
