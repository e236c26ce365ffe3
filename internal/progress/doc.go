// Package progress carries run lifecycle events from the crawl-and-persist
// handler to pluggable sinks (logs, Prometheus, the run ledger) through a
// non-blocking batching hub.
package progress
