/*
Package observability keeps the record of what a pipeline did.

TraceStore implements ports.TraceStore for run previews. Metrics turns the
engine's lifecycle hooks into Prometheus series, and SetupProvider installs an
OpenTelemetry tracer provider that exports the engine's spans over OTLP.
*/
package observability
