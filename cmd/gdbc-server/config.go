package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gdbc/internal/admin"
	"gdbc/internal/procmgr"
	"gdbc/internal/runplan"
	"gdbc/internal/server"
	"gdbc/internal/workspace"
	"gdbc/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	defaultHelperPath      = "runner-init"
	defaultMetricsPrefix   = "gdbc"
)

// RunnerConfig holds process manager and toolchain settings.
type RunnerConfig struct {
	MaxProcesses   int               `yaml:"maxProcesses"`
	HelperPath     string            `yaml:"helperPath"`
	TempDir        string            `yaml:"tempDir"`
	BinDir         string            `yaml:"binDir"`
	ReadChunk      int               `yaml:"readChunk"`
	ArgvMode       string            `yaml:"argvMode"`
	EchoCompile    bool              `yaml:"echoCompile"`
	KillOnShutdown *bool             `yaml:"killOnShutdown"`
	ExitRecheck    time.Duration     `yaml:"exitRecheck"`
	Compilers      procmgr.Toolchain `yaml:"compilers"`
	Debugger       string            `yaml:"debugger"`
	Limits         runplan.Limits    `yaml:"limits"`
	SeccompProfile string            `yaml:"seccompProfile"`
}

// AppConfig holds gdbc-server config.
type AppConfig struct {
	Server          server.Config `yaml:"server"`
	Admin           admin.Config  `yaml:"admin"`
	Runner          RunnerConfig  `yaml:"runner"`
	Logger          logger.Config `yaml:"logger"`
	MetricsPrefix   string        `yaml:"metricsPrefix"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadAppConfig reads path and applies defaults. A missing file yields the
// defaults alone so the server can start without any configuration.
func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	applyDefaults(&cfg)
	if _, err := procmgr.ArgvMode(cfg.Runner.ArgvMode).Split(""); err != nil {
		return nil, fmt.Errorf("runner.argvMode: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = server.DefaultAddr
	}
	if cfg.Server.Backlog <= 0 {
		cfg.Server.Backlog = 128
	}
	if cfg.Server.Workers <= 0 {
		cfg.Server.Workers = server.DefaultWorkers
	}
	if cfg.Server.BufferSize <= 0 {
		cfg.Server.BufferSize = server.DefaultBufferSize
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = server.DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = server.DefaultWriteTimeout
	}
	if cfg.Admin.Addr == "" {
		cfg.Admin.Addr = admin.DefaultAddr
	}

	r := &cfg.Runner
	if r.MaxProcesses <= 0 {
		r.MaxProcesses = 1024
	}
	if strings.TrimSpace(r.HelperPath) == "" {
		r.HelperPath = defaultHelperPath
	}
	if r.TempDir == "" {
		r.TempDir = workspace.DefaultTempDir
	}
	if r.BinDir == "" {
		r.BinDir = workspace.DefaultBinDir
	}
	if r.ReadChunk <= 0 {
		r.ReadChunk = 14 * 1024
	}
	if r.ArgvMode == "" {
		r.ArgvMode = string(procmgr.ArgvSpace)
	}
	if r.KillOnShutdown == nil {
		on := true
		r.KillOnShutdown = &on
	}
	if r.Debugger != "" {
		r.Compilers.Debugger = r.Debugger
	}

	if cfg.MetricsPrefix == "" {
		cfg.MetricsPrefix = defaultMetricsPrefix
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
}

func (r RunnerConfig) managerConfig() procmgr.Config {
	return procmgr.Config{
		MaxProcesses: r.MaxProcesses,
		ReadChunk:    r.ReadChunk,
		ArgvMode:     procmgr.ArgvMode(r.ArgvMode),
		Toolchain:    r.Compilers,
		Limits:       r.Limits,
		EchoCompile:  r.EchoCompile,
		ExitRecheck:  r.ExitRecheck,

		SeccompProfile: r.SeccompProfile,
	}
}
