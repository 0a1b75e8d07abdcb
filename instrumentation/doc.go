// Package instrumentation provides OpenTelemetry (OTEL) instrumentation
// for the credguard library.
//
// It exposes metric instruments for rate-limit decisions, counter-store
// operations, and cipher operations, plus named tracers for the library's
// layers. When disabled it uses no-op providers with zero overhead.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "my-service",
//		ServiceVersion: "1.0.0",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
package instrumentation
