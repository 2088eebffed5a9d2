// Package telemetry bootstraps the OpenTelemetry SDK for the daemon:
// resource attributes, an OTLP trace exporter over grpc or http, and a
// meter provider that always feeds a local Prometheus registry and
// optionally mirrors to OTLP. Initialization failures degrade to no-op
// providers instead of failing startup; exporting telemetry is never
// worth refusing to serve.
package telemetry
