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

// Package observability provides OpenTelemetry distributed tracing
// over executor and store operations. It does not cover metrics —
// see pkg/telemetry for Prometheus counters and histograms.
package observability

import "fmt"

// TracerConfig configures OpenTelemetry tracing.
type TracerConfig struct {
	// Enabled turns on distributed tracing. Default: false.
	Enabled bool `yaml:"enabled,omitempty"`

	// ExporterType selects the span exporter: "otlp" (default) or
	// "stdout" (writes spans to stdout, useful for local debugging).
	ExporterType string `yaml:"exporter_type,omitempty"`

	// EndpointURL is the OTLP/gRPC collector endpoint, e.g.
	// "localhost:4317". Ignored when ExporterType is "stdout".
	EndpointURL string `yaml:"endpoint_url,omitempty"`

	// SamplingRate controls what fraction of traces are sampled, from
	// 0.0 (none) to 1.0 (all). Default: 1.0.
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`

	// ServiceName identifies this service in emitted traces.
	// Default: "stepflow".
	ServiceName string `yaml:"service_name,omitempty"`
}

// SetDefaults applies default values to TracerConfig.
func (c *TracerConfig) SetDefaults() {
	if c.ExporterType == "" {
		c.ExporterType = "otlp"
	}
	if c.ServiceName == "" {
		c.ServiceName = "stepflow"
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = 1.0
	}
}

// Validate checks TracerConfig for errors.
func (c *TracerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ExporterType == "otlp" && c.EndpointURL == "" {
		return fmt.Errorf("endpoint_url is required when exporter_type is otlp")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate must be between 0 and 1, got %f", c.SamplingRate)
	}
	return nil
}
