// Package blockd provides a block tree served over a TCP session
// protocol.
//
// blockd exposes a blocktree.Store with:
//
//   - Create, update, delete, and move operations on blocks
//   - Listing with depth traversals and filter expressions
//   - Named watches with backlog replay and live change events
//   - A choice of in-memory or replicated (CRDT) backend
//
// # Server
//
// Start the server with:
//
//	bt serve -addr 127.0.0.1:7337 -backend crdt -data /path/to/store
//
// # Session Protocol
//
// The TCP session protocol provides:
//
//   - Newline-delimited JSON requests and responses
//   - Request pipelining with optional async IDs
//   - Watch/Unwatch with version-token replay
//   - Streaming events for real-time updates
//
// # Related Packages
//
//   - [api] - Request/response types
//   - [server] - TCP session server
package blockd
