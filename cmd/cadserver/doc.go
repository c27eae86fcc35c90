// Command cadserver is the multi-agent CAD environment server.
//
// It wires the persistent store, geometry kernel, constraint graph,
// branch/merge engine, operation dispatcher, and multi-agent
// controller into a single process exposing an HTTP JSON-RPC surface,
// an NDJSON batch loop, health endpoints, and Prometheus metrics.
//
// Subcommands: serve, batch, migrate, version, health.
package main
