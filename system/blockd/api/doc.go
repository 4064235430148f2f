// Package api defines the wire protocol for the blockd server.
//
// Messages are newline-delimited JSON documents over a single TCP
// connection. Clients send SessionRequest values and receive
// SessionResponse values carrying a result, a watch event, or an error.
//
// # Related Packages
//
//   - github.com/blocktree-io/blocktree/system/blockd/server - Server implementation
package api
