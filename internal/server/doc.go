// Package server implements the relaychat TCP server.
//
// The implementation is organized into specialized files for configuration,
// the client registry, per-connection handlers, the operator that types
// replies, and the accept loop, so each piece can be tested on its own.
// A Server owns its Registry; nothing in the package is process-global.
package server
