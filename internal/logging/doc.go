// Package logging provides file-based structured logging for doclex.
//
// When doclex runs as the MCP server, the logging subsystem must never
// write to standard output — stdout carries only the line-delimited
// JSON-RPC protocol. Logs go to a per-user file (and optionally stderr, in
// CLI/interactive modes that don't share stdout with the protocol).
package logging
