// Package telemetry sets up OpenTelemetry tracing and metrics export for
// hmochat.
//
// New installs an OTLP tracer provider and meter provider as the otel
// globals, so packages instrument themselves with otel.Tracer and otel.Meter
// without holding a reference to Telemetry:
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// The dialogue spans are "orchestrator.Run" with one "orchestrator.node"
// child per executed state, plus "llm.Generate", "llm.CompleteJSON" and the
// vector store search spans beneath them.
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc          # or http/protobuf
//	  insecure: true          # only allowed for loopback endpoints
//	  sample_rate: 1.0
//
// # Error Handling
//
// Telemetry failures do not stop the service. A provider that cannot be
// created leaves the no-op global in place and marks the instance degraded;
// Health reports why.
//
// # Testing
//
// TestTelemetry records spans and metrics in memory. Install makes it global
// for the duration of a test:
//
//	tt := telemetry.NewTestTelemetry()
//	tt.Install(t)
//	// run code under test
//	tt.AssertSpanExists(t, "orchestrator.Run")
package telemetry
