// Package crdtstore implements the Store interface over conflict-free
// replicated state, so replicas can edit the same tree concurrently and
// merge without coordination.
//
// Layout of the replicated state:
//
//   - blocks: one record per block id holding last-writer-wins
//     registers for parent, content, and the deleted flag, ordered by
//     (Lamport, Actor)
//
//   - children: one RGA sequence per parent holding insert-after
//     elements; moves tombstone the old element and insert a fresh one
//
// Every public mutation is exactly one update: an atomic batch of ops
// identified by (actor, seq). Updates are exchanged as opaque blobs via
// ExportUpdates/ApplyUpdates; application is idempotent, tolerates
// out-of-order delivery, and never fails on conflicts. Reads resolve the
// merged state deterministically: stale order elements are filtered,
// blocks whose parent is gone are adopted by the root, and cycles woven
// by concurrent cross-replica moves are re-rooted.
//
// Stores are either purely in-memory (New) or persisted to a badger
// database (Create/Open) that retains every update blob, so a reopened
// store rebuilds its state and can resume watches issued against an
// earlier open.
package crdtstore
