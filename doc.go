// Package blocktree defines the block-tree data model and the storage
// contract shared by all backends.
//
// A store holds one tree of blocks under a synthetic root. Backends
// implement the Store interface:
//
//   - memstore - a plain in-memory tree, the correctness reference
//
//   - crdtstore - a CRDT-backed tree that merges concurrent edits from
//     other replicas without coordination
//
// Both expose identical operation, ordering, and change-notification
// semantics; the storetest package proves the equivalence.
//
// # Related Packages
//
//   - github.com/blocktree-io/blocktree/memstore - reference backend
//   - github.com/blocktree-io/blocktree/crdtstore - CRDT backend
//   - github.com/blocktree-io/blocktree/storetest - equivalence harness
//   - github.com/blocktree-io/blocktree/system/blockd - store daemon
package blocktree
