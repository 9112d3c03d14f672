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

package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"
)

func TestInitGlobalTracer_DisabledReturnsNoop(t *testing.T) {
	tp, err := InitGlobalTracer(context.Background(), TracerConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitGlobalTracer() error = %v", err)
	}
	if _, ok := tp.(noop.TracerProvider); !ok {
		t.Fatalf("InitGlobalTracer(disabled) = %T, want noop.TracerProvider", tp)
	}
}

func TestInitGlobalTracer_StdoutExporter(t *testing.T) {
	tp, err := InitGlobalTracer(context.Background(), TracerConfig{
		Enabled:      true,
		ExporterType: "stdout",
		ServiceName:  "stepflow-test",
	})
	if err != nil {
		t.Fatalf("InitGlobalTracer() error = %v", err)
	}
	if tp == nil {
		t.Fatal("InitGlobalTracer(stdout) = nil")
	}
}

func TestTracerConfig_ValidateRequiresEndpointForOTLP(t *testing.T) {
	cfg := TracerConfig{Enabled: true, ExporterType: "otlp"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() = nil, want error for missing endpoint_url")
	}
}

func TestTracerConfig_SetDefaults(t *testing.T) {
	cfg := TracerConfig{Enabled: true}
	cfg.SetDefaults()
	if cfg.ExporterType != "otlp" || cfg.ServiceName != "stepflow" || cfg.SamplingRate != 1.0 {
		t.Fatalf("SetDefaults() = %+v, want otlp/stepflow/1.0 defaults", cfg)
	}
}
