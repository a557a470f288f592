// Package observe provides observability primitives for the live-query
// client: structured logging, subscription metrics, and tracing.
//
// It is a pure instrumentation library: no subscriptions, no transport, no
// I/O beyond exporter setup. Consumers wire the observer into the cache
// registry and transport client.
package observe
