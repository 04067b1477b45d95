// Package sinks contains progress.Sink implementations: Prometheus
// collectors, the crawl-run store, and a structured-log sink.
package sinks
