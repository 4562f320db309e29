// Package telemetry records search activity for coderag.
//
// Metrics exports Prometheus series for scraping; QueryStats keeps a small
// in-memory summary for the index_status tool. Both implement
// search.Observer and can be combined with Fanout. Nothing leaves the host
// unless a metrics endpoint is configured.
package telemetry
