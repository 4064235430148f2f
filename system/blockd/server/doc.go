// Package server provides the TCP server implementation for blockd.
//
// Exposes a blocktree.Store over the newline-delimited JSON session
// protocol, handling block operations and named watches.
//
// # Related Packages
//
//   - github.com/blocktree-io/blocktree/system/blockd/api - Protocol types
//   - github.com/blocktree-io/blocktree/memstore - In-memory backend
//   - github.com/blocktree-io/blocktree/crdtstore - Replicated backend
package server
