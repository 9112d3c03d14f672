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
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/stepflow-dev/stepflow/pkg/config"
	"github.com/stepflow-dev/stepflow/pkg/content"
	"github.com/stepflow-dev/stepflow/pkg/executor"
	"github.com/stepflow-dev/stepflow/pkg/knowledge"
	"github.com/stepflow-dev/stepflow/pkg/logger"
	"github.com/stepflow-dev/stepflow/pkg/mcpserver"
	"github.com/stepflow-dev/stepflow/pkg/observability"
	"github.com/stepflow-dev/stepflow/pkg/resources"
	"github.com/stepflow-dev/stepflow/pkg/statemachine"
	"github.com/stepflow-dev/stepflow/pkg/telemetry"
	"github.com/stepflow-dev/stepflow/pkg/token"
	"github.com/stepflow-dev/stepflow/pkg/tools"
)

// ServeCmd wires up every package into a running MCP server and blocks
// until it is asked to stop.
type ServeCmd struct {
	Migrate bool `help:"Apply pending store migrations before serving."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	level, _ := logger.ParseLevel(cfg.Logger.Level)
	logger.Init(level, os.Stderr, cfg.Logger.Format)
	log := logger.GetLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	tp, err := observability.InitGlobalTracer(ctx, cfg.Observability)
	if err != nil {
		return fmt.Errorf("stepflow: tracer: %w", err)
	}
	defer func() {
		if shutdowner, ok := tp.(interface{ Shutdown(context.Context) error }); ok {
			_ = shutdowner.Shutdown(context.Background())
		}
	}()

	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("stepflow: store: %w", err)
	}
	defer s.Close()

	if c.Migrate {
		if err := s.Migrate(ctx, log); err != nil {
			return fmt.Errorf("stepflow: migrate: %w", err)
		}
	}

	provider, err := content.NewFilesystemProvider(cfg.Content.ContentPath, log)
	if err != nil {
		return fmt.Errorf("stepflow: content: %w", err)
	}
	if cfg.Content.DiscoveryMethod == "autodiscover" {
		if err := provider.Watch(ctx); err != nil {
			return fmt.Errorf("stepflow: content watch: %w", err)
		}
		defer provider.Close()
	}

	var codec token.Codec
	if cfg.Token.HMACSecret != "" {
		codec = token.NewHMACCodec(cfg.Token.HMACSecret, token.WithTTL(cfg.Token.TTL), token.WithClockSkew(cfg.Token.ClockSkew))
	} else {
		codec = token.New(token.WithTTL(cfg.Token.TTL), token.WithClockSkew(cfg.Token.ClockSkew))
	}

	machine := statemachine.New(s, log)

	metrics, err := telemetry.NewMetrics(&cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("stepflow: telemetry: %w", err)
	}
	var recorder telemetry.Recorder = telemetry.NoopRecorder{}
	if metrics != nil {
		recorder = metrics
	}

	ex := executor.New(s, machine, codec, log, executor.WithRecorder(recorder))

	semantic, err := knowledge.NewSemanticIndex()
	if err != nil {
		return fmt.Errorf("stepflow: semantic index: %w", err)
	}
	knowledgeSvc := knowledge.New(s, semantic)

	resourceHandlers := resources.New(s, provider, knowledgeSvc, codec)
	toolHandlers := tools.New(ex, s, codec, provider, knowledgeSvc)

	mcp := mcpserver.New(cfg.Server.Name, cfg.Server.Version, toolHandlers, resourceHandlers, log)

	var sweeper *executor.Sweeper
	if cfg.Server.SweeperEnabled {
		sweeper = executor.NewSweeper(s, machine, cfg.Server.SweeperInterval, log)
		go sweeper.Run(ctx)
	}

	if metrics != nil && cfg.Telemetry.Enabled {
		go serveMetrics(ctx, log, cfg.Telemetry, metrics)
	}

	switch cfg.Server.Transport {
	case "http":
		log.Info("serving", "transport", "http", "addr", cfg.Server.HTTPAddr)
		return mcp.ServeHTTP(ctx, cfg.Server.HTTPAddr)
	default:
		log.Info("serving", "transport", "stdio")
		return mcp.ServeStdio(ctx)
	}
}

// serveMetrics runs the Prometheus scrape endpoint alongside the MCP
// server, independent of which transport the MCP traffic itself uses.
func serveMetrics(ctx context.Context, log *slog.Logger, cfg telemetry.Config, metrics *telemetry.Metrics) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Endpoint, metrics.Handler())
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("metrics server stopped", "error", err)
	}
}
