// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the Draftbridge
// conversion service.
//
// Configuration is loaded from a single YAML file specified by:
//   - DRAFTBRIDGE_CONFIG environment variable, or
//   - --config flag passed to the binary
//
// When neither is set the service runs on built-in defaults. There is no
// automatic discovery beyond that. Environment variables do not override
// individual config values — this keeps configuration deterministic and
// auditable.
//
// The config file may contain environment-specific sections (development,
// staging, production) that override base values when the environment
// matches.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the conversion service.
type Config struct {
	// Environment identifies the deployment type (development, staging,
	// production).
	Environment Environment `yaml:"environment"`

	// Listen configures the HTTP listener.
	Listen ListenConfig `yaml:"listen"`

	// Engine configures the external conversion engine subprocess.
	Engine EngineConfig `yaml:"engine"`

	// Workspace configures per-request scratch directories.
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Limits configures admission control and upload bounds.
	Limits LimitsConfig `yaml:"limits"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Listen    *ListenConfig    `yaml:"listen,omitempty"`
	Engine    *EngineConfig    `yaml:"engine,omitempty"`
	Workspace *WorkspaceConfig `yaml:"workspace,omitempty"`
	Limits    *LimitsConfig    `yaml:"limits,omitempty"`
}

// ListenConfig configures the HTTP listener.
type ListenConfig struct {
	// Address is the TCP listen address.
	// Default: 0.0.0.0:3000
	Address string `yaml:"address"`

	// ShutdownTimeout bounds graceful shutdown, as a Go duration string.
	// Default: 10s
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// EngineConfig configures the external conversion engine.
type EngineConfig struct {
	// Path is the engine binary. The engine is invoked as
	// "<path> -o <output> <input>" inside the request workspace.
	// Default: /usr/local/bin/dwg2dxf
	Path string `yaml:"path"`

	// Env holds extra environment variables for the engine process,
	// appended to the service's own environment. Used for library
	// search path configuration (LD_LIBRARY_PATH) when the engine's
	// shared libraries live outside the default loader paths.
	Env map[string]string `yaml:"env"`

	// Timeout is the per-conversion wall-clock limit, as a Go
	// duration string. A run exceeding it is killed and reported as
	// timed out. Default: 60s
	Timeout string `yaml:"timeout"`

	// GracePeriod is how long a cancelled engine process is given to
	// exit after SIGTERM before SIGKILL, as a Go duration string.
	// Default: 5s
	GracePeriod string `yaml:"grace_period"`

	// CaptureLimit is the maximum number of bytes retained from each
	// of the engine's stdout and stderr streams. Output past the
	// limit is discarded, not buffered. Default: 32768
	CaptureLimit int `yaml:"capture_limit"`
}

// WorkspaceConfig configures per-request scratch directories.
type WorkspaceConfig struct {
	// Root is the directory under which request workspaces are
	// created. Default: the system temp directory.
	Root string `yaml:"root"`

	// MinFreeBytes is the minimum free space required on the
	// workspace filesystem before a new workspace is granted.
	// Acquisition fails with a resource-exhausted error below this.
	// Default: 256 MB
	MinFreeBytes int64 `yaml:"min_free_bytes"`
}

// LimitsConfig configures admission control and upload bounds.
type LimitsConfig struct {
	// MaxUploadBytes is the maximum accepted request body size.
	// Oversized uploads are rejected before any resources are
	// committed. Default: 64 MB
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// MaxConcurrent is the number of conversions allowed to run
	// simultaneously. The engine is CPU- and memory-heavy per
	// invocation, so this should track the host's core count.
	// Default: runtime.GOMAXPROCS(0)
	MaxConcurrent int `yaml:"max_concurrent"`

	// QueueDepth is how many admitted-but-waiting requests may queue
	// behind the concurrent slots before further requests are
	// rejected as overloaded. Default: 2 × MaxConcurrent
	QueueDepth int `yaml:"queue_depth"`
}

// Default returns the default configuration. The service is fully
// functional on defaults alone — a config file is only needed to change
// them.
func Default() *Config {
	return &Config{
		Environment: Development,
		Listen: ListenConfig{
			Address:         "0.0.0.0:3000",
			ShutdownTimeout: "10s",
		},
		Engine: EngineConfig{
			Path:         "/usr/local/bin/dwg2dxf",
			Timeout:      "60s",
			GracePeriod:  "5s",
			CaptureLimit: 32 * 1024,
		},
		Workspace: WorkspaceConfig{
			Root:         os.TempDir(),
			MinFreeBytes: 256 << 20,
		},
		Limits: LimitsConfig{
			MaxUploadBytes: 64 << 20,
			MaxConcurrent:  runtime.GOMAXPROCS(0),
			QueueDepth:     2 * runtime.GOMAXPROCS(0),
		},
	}
}

// Load loads configuration from the DRAFTBRIDGE_CONFIG environment
// variable, falling back to defaults when it is unset.
func Load() (*Config, error) {
	configPath := os.Getenv("DRAFTBRIDGE_CONFIG")
	if configPath == "" {
		cfg := Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The file is
// merged over defaults, then environment-specific overrides are
// applied, then the result is validated.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific override
// section matching the configured environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Listen != nil {
		if overrides.Listen.Address != "" {
			c.Listen.Address = overrides.Listen.Address
		}
		if overrides.Listen.ShutdownTimeout != "" {
			c.Listen.ShutdownTimeout = overrides.Listen.ShutdownTimeout
		}
	}

	if overrides.Engine != nil {
		if overrides.Engine.Path != "" {
			c.Engine.Path = overrides.Engine.Path
		}
		if len(overrides.Engine.Env) > 0 {
			if c.Engine.Env == nil {
				c.Engine.Env = make(map[string]string)
			}
			for name, value := range overrides.Engine.Env {
				c.Engine.Env[name] = value
			}
		}
		if overrides.Engine.Timeout != "" {
			c.Engine.Timeout = overrides.Engine.Timeout
		}
		if overrides.Engine.GracePeriod != "" {
			c.Engine.GracePeriod = overrides.Engine.GracePeriod
		}
		if overrides.Engine.CaptureLimit != 0 {
			c.Engine.CaptureLimit = overrides.Engine.CaptureLimit
		}
	}

	if overrides.Workspace != nil {
		if overrides.Workspace.Root != "" {
			c.Workspace.Root = overrides.Workspace.Root
		}
		if overrides.Workspace.MinFreeBytes != 0 {
			c.Workspace.MinFreeBytes = overrides.Workspace.MinFreeBytes
		}
	}

	if overrides.Limits != nil {
		if overrides.Limits.MaxUploadBytes != 0 {
			c.Limits.MaxUploadBytes = overrides.Limits.MaxUploadBytes
		}
		if overrides.Limits.MaxConcurrent != 0 {
			c.Limits.MaxConcurrent = overrides.Limits.MaxConcurrent
		}
		if overrides.Limits.QueueDepth != 0 {
			c.Limits.QueueDepth = overrides.Limits.QueueDepth
		}
	}
}

// Validate checks the configuration for consistency. Duration fields
// must parse, sizes and counts must be positive.
func (c *Config) Validate() error {
	if c.Listen.Address == "" {
		return fmt.Errorf("listen.address must not be empty")
	}
	if _, err := time.ParseDuration(c.Listen.ShutdownTimeout); err != nil {
		return fmt.Errorf("listen.shutdown_timeout %q: %w", c.Listen.ShutdownTimeout, err)
	}
	if c.Engine.Path == "" {
		return fmt.Errorf("engine.path must not be empty")
	}
	timeout, err := time.ParseDuration(c.Engine.Timeout)
	if err != nil {
		return fmt.Errorf("engine.timeout %q: %w", c.Engine.Timeout, err)
	}
	if timeout <= 0 {
		return fmt.Errorf("engine.timeout must be positive, got %q", c.Engine.Timeout)
	}
	grace, err := time.ParseDuration(c.Engine.GracePeriod)
	if err != nil {
		return fmt.Errorf("engine.grace_period %q: %w", c.Engine.GracePeriod, err)
	}
	if grace < 0 {
		return fmt.Errorf("engine.grace_period must not be negative, got %q", c.Engine.GracePeriod)
	}
	if c.Engine.CaptureLimit <= 0 {
		return fmt.Errorf("engine.capture_limit must be positive, got %d", c.Engine.CaptureLimit)
	}
	if c.Workspace.MinFreeBytes < 0 {
		return fmt.Errorf("workspace.min_free_bytes must not be negative, got %d", c.Workspace.MinFreeBytes)
	}
	if c.Limits.MaxUploadBytes <= 0 {
		return fmt.Errorf("limits.max_upload_bytes must be positive, got %d", c.Limits.MaxUploadBytes)
	}
	if c.Limits.MaxConcurrent <= 0 {
		return fmt.Errorf("limits.max_concurrent must be positive, got %d", c.Limits.MaxConcurrent)
	}
	if c.Limits.QueueDepth < 0 {
		return fmt.Errorf("limits.queue_depth must not be negative, got %d", c.Limits.QueueDepth)
	}
	return nil
}

// EngineTimeout returns the parsed engine.timeout. Call after Validate.
func (c *Config) EngineTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Engine.Timeout)
	return d
}

// EngineGracePeriod returns the parsed engine.grace_period. Call after
// Validate.
func (c *Config) EngineGracePeriod() time.Duration {
	d, _ := time.ParseDuration(c.Engine.GracePeriod)
	return d
}

// ShutdownTimeout returns the parsed listen.shutdown_timeout. Call
// after Validate.
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Listen.ShutdownTimeout)
	return d
}
