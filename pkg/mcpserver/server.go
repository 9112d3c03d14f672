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

// Package mcpserver is the MCP transport (C7 resources + C8 tools):
// it translates the protocol's tool-call and resource-read requests into
// calls against pkg/tools and pkg/resources and marshals their results
// back as JSON text, the way the rest of this module's callers consume
// them over any transport.
package mcpserver

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/stepflow-dev/stepflow/pkg/resources"
	"github.com/stepflow-dev/stepflow/pkg/tools"
)

// Server wraps an MCP server configured with the full C7+C8 surface.
type Server struct {
	mcp       *server.MCPServer
	tools     *tools.Handlers
	resources *resources.Handlers
	logger    *slog.Logger
}

// New constructs a Server and registers all tools and resources. A nil
// logger defaults to slog.Default().
func New(name, version string, toolHandlers *tools.Handlers, resourceHandlers *resources.Handlers, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcp:       server.NewMCPServer(name, version, server.WithResourceCapabilities(true, true)),
		tools:     toolHandlers,
		resources: resourceHandlers,
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio runs the server over stdio until ctx is canceled or stdin
// closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.ServeStdio(s.mcp, server.WithStdioContextFunc(func(context.Context) context.Context { return ctx }))
}

// ServeHTTP runs the server as a streamable-HTTP endpoint bound to addr
// (e.g. ":8090"), blocking until it fails or ctx is canceled.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.mcp)
	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Start(addr) }()
	select {
	case <-ctx.Done():
		return httpServer.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
