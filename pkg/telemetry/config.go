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

// Package telemetry provides Prometheus metrics collection over the
// executor's lifecycle events (executions started/completed/failed,
// step durations, token validation outcomes). It is deliberately
// separate from pkg/observability, which covers distributed tracing
// only.
package telemetry

// Config configures Prometheus metrics collection.
type Config struct {
	// Enabled turns on metrics collection. Default: false.
	Enabled bool `yaml:"enabled,omitempty"`

	// Namespace prefixes all metric names. Default: "stepflow".
	Namespace string `yaml:"namespace,omitempty"`

	// Endpoint is the path the metrics handler is mounted on.
	// Default: "/metrics".
	Endpoint string `yaml:"endpoint,omitempty"`

	// Addr is the bind address for the standalone metrics HTTP server.
	// Default: ":9090".
	Addr string `yaml:"addr,omitempty"`
}

// SetDefaults applies default values to Config.
func (c *Config) SetDefaults() {
	if c.Namespace == "" {
		c.Namespace = "stepflow"
	}
	if c.Endpoint == "" {
		c.Endpoint = "/metrics"
	}
	if c.Addr == "" {
		c.Addr = ":9090"
	}
}
