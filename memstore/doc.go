// Package memstore implements the Store interface over plain in-memory
// maps. It is the reference backend: the simplest implementation of the
// block-tree semantics, used by the storetest harness as the oracle the
// CRDT backend is checked against.
//
// Characteristics:
//
//   - Ownership tree: one blocks map plus one parent-to-children order
//     map, guarded by a single mutex
//
//   - Version tokens: a per-instance epoch plus a big-endian commit
//     counter; tokens from other instances are rejected
//
//   - Change feed: an append-only in-memory log replayed by
//     WatchChangesSince
//
//   - Clone: a deep copy sharing no state with the original, with a
//     fresh (empty) watcher registry
package memstore
