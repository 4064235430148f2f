package crdtstore

import (
	"encoding/json"
	"errors"
	"fmt"
)

// opKind discriminates the ops inside an update.
type opKind string

const (
	opCreate opKind = "create"
	opUpdate opKind = "update"
	opMove   opKind = "move"
	opDelete opKind = "delete"
)

// op is one primitive mutation.
//
//   - create: upsert the block record, write all three registers, and
//     insert an order element for BlockID after After in Parent's list
//   - update: write the content register
//   - move: write the parent register, tombstone the Removed elements,
//     and insert a fresh order element in Parent's list
//   - delete: write the deleted register
type op struct {
	Kind    opKind `json:"kind"`
	ID      OpID   `json:"id"`
	BlockID string `json:"blockId"`
	Parent  string `json:"parent,omitempty"`
	After   OpID   `json:"after"`
	Content string `json:"content,omitempty"`
	Removed []OpID `json:"removed,omitempty"`
	At      int64  `json:"at"`
}

// update is the unit of replication: one atomic batch of ops from one
// actor, identified by (Actor, Seq). Seq is dense per actor, starting
// at 1.
type update struct {
	Actor string `json:"actor"`
	Seq   uint64 `json:"seq"`
	Ops   []op   `json:"ops"`
}

func encodeUpdate(u *update) ([]byte, error) {
	return json.Marshal(u)
}

func decodeUpdate(blob []byte) (*update, error) {
	u := new(update)
	if err := json.Unmarshal(blob, u); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	if u.Actor == "" {
		return nil, errors.New("decode update: missing actor")
	}
	if u.Seq == 0 {
		return nil, errors.New("decode update: missing seq")
	}
	return u, nil
}
