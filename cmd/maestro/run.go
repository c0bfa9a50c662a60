// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/logger"
	"github.com/kadirpekel/maestro/pkg/observability"
	"github.com/kadirpekel/maestro/pkg/orchestrator"
	"github.com/kadirpekel/maestro/pkg/task"
)

// RunCmd runs a crew to completion.
type RunCmd struct {
	Config string `arg:"" help:"Path to crew configuration file." type:"path"`
	Watch  bool   `help:"Watch the config file and log changes (the running crew is not restarted)."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	_ = config.LoadEnvFiles()

	cfg, loader, err := config.LoadConfigFile(ctx, c.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer loader.Close()

	if err := initLogger(cli, cfg); err != nil {
		return err
	}
	slog.Info("Loaded configuration", "path", c.Config)

	if c.Watch {
		go func() {
			if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Config watch error", "error", err)
			}
		}()
	}

	serviceName := cfg.Tracing.ServiceName
	if serviceName == "" {
		serviceName = cfg.Name
	}
	tp, err := observability.InitGlobalTracer(ctx, observability.TracerConfig{
		Enabled:      cfg.Tracing.Enabled,
		EndpointURL:  cfg.Tracing.EndpointURL,
		SamplingRate: cfg.Tracing.SamplingRate,
		ServiceName:  serviceName,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer shutdownTracer(tp)

	crew, err := orchestrator.FromConfig(cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to assemble crew: %w", err)
	}
	defer func() {
		if err := crew.Close(); err != nil {
			slog.Warn("Crew close error", "error", err)
		}
	}()

	result, err := crew.Kickoff(ctx)
	if err != nil {
		return fmt.Errorf("crew run failed: %w", err)
	}

	printRunResult(crew, result)
	return nil
}

// shutdownTracer flushes pending spans. The noop provider used when
// tracing is disabled has no Shutdown method.
func shutdownTracer(tp any) {
	sd, ok := tp.(interface{ Shutdown(context.Context) error })
	if !ok {
		return
	}
	if err := sd.Shutdown(context.Background()); err != nil {
		slog.Warn("Tracer shutdown error", "error", err)
	}
}

func printRunResult(crew *orchestrator.Crew, result *orchestrator.RunResult) {
	fmt.Printf("\nRun %s\n", result.RunID)
	for _, t := range crew.Orchestrator.Tasks() {
		status := result.Statuses[t.ID]
		fmt.Printf("\n[%s] %s\n", status, t.DisplayName())
		if out := result.Results[t.ID]; out != nil && status == task.StatusCompleted {
			fmt.Println(out.Raw)
		}
	}
}

// ValidateCmd checks a configuration file without running it.
type ValidateCmd struct {
	Config string `arg:"" help:"Path to crew configuration file." type:"path"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	ctx := context.Background()

	_ = config.LoadEnvFiles()

	cfg, loader, err := config.LoadConfigFile(ctx, c.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer loader.Close()

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Printf("%s is valid: %d agent(s), %d task(s), process %q\n",
		c.Config, len(cfg.Agents), len(cfg.Tasks), cfg.Process.Type)
	return nil
}

// initLogger applies log settings: CLI flags win over the config file.
func initLogger(cli *CLI, cfg *config.Config) error {
	level := cli.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	format := cli.LogFormat
	if format == "" {
		format = cfg.Logging.Format
	}

	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger.Init(parsed, os.Stderr, format)
	return nil
}
