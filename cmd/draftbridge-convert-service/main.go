// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/draftbridge/draftbridge/lib/config"
	"github.com/draftbridge/draftbridge/lib/convert"
	"github.com/draftbridge/draftbridge/lib/engine"
	"github.com/draftbridge/draftbridge/lib/limiter"
	"github.com/draftbridge/draftbridge/lib/service"
	"github.com/draftbridge/draftbridge/lib/version"
	"github.com/draftbridge/draftbridge/lib/workspace"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath    string
		listenAddress string
		showVersion   bool
	)
	pflag.StringVar(&configPath, "config", "", "path to the YAML config file (overrides DRAFTBRIDGE_CONFIG)")
	pflag.StringVar(&listenAddress, "listen", "", "TCP listen address (overrides the config file)")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		version.Print("draftbridge-convert-service")
		return nil
	}

	logger := service.NewLogger()

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if listenAddress != "" {
		cfg.Listen.Address = listenAddress
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workspaces, err := workspace.NewManager(workspace.ManagerConfig{
		Root:         cfg.Workspace.Root,
		MinFreeBytes: cfg.Workspace.MinFreeBytes,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("initializing workspace manager: %w", err)
	}

	runner := engine.NewRunner(engine.RunnerConfig{
		BinaryPath:   cfg.Engine.Path,
		ExtraEnv:     cfg.Engine.Env,
		GracePeriod:  cfg.EngineGracePeriod(),
		CaptureLimit: cfg.Engine.CaptureLimit,
		Logger:       logger,
	})

	orchestrator := convert.NewOrchestrator(convert.OrchestratorConfig{
		Workspaces: workspaces,
		Runner:     runner,
		Admission:  limiter.New(cfg.Limits.MaxConcurrent, cfg.Limits.QueueDepth),
		Timeout:    cfg.EngineTimeout(),
		Logger:     logger,
	})

	handler := NewConvertHandler(ConvertHandlerConfig{
		Orchestrator:   orchestrator,
		MaxUploadBytes: cfg.Limits.MaxUploadBytes,
		Logger:         logger,
	})

	server := service.NewHTTPServer(service.HTTPServerConfig{
		Address:         cfg.Listen.Address,
		Handler:         handler,
		ShutdownTimeout: cfg.ShutdownTimeout(),
		Logger:          logger,
	})

	logger.Info("conversion service starting",
		"version", version.Info(),
		"environment", string(cfg.Environment),
		"address", cfg.Listen.Address,
		"engine", cfg.Engine.Path,
		"workspace_root", cfg.Workspace.Root,
		"max_concurrent", cfg.Limits.MaxConcurrent,
		"queue_depth", cfg.Limits.QueueDepth,
		"max_upload_bytes", cfg.Limits.MaxUploadBytes,
	)

	return server.Serve(ctx)
}
