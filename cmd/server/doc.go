// Package main is the entry point for the updrift update-distribution
// server.
//
// The server keeps a registry of applications and published versions, a
// catalog of full and incremental update packages, and serves two
// client-facing operations: update resolution (what should this client
// download next, or where does its interrupted transfer continue) and
// resumable byte-range package downloads.
//
// Configuration comes from defaults, an optional TOML file (-config), and
// UPDRIFT_* environment variables, in that precedence order.
//
// Usage:
//
//	./server -config updrift.toml
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown, draining in-flight downloads
package main
